// Package datastore stores configuration resources as JSON documents
// keyed by resource path.
//
// A resource path is the part of a RESTCONF data URL after the data
// root, e.g. "ietf-interfaces:interfaces/interface=eth0". Reading a path
// that has no document of its own but has descendants returns an object
// assembled from them, so a subtree can be written piecewise and read
// back as a whole.
//
// The only backend is Badger, on disk or in memory.
package datastore
