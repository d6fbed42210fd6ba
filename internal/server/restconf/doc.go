// Package restconf implements the RESTCONF resource handlers served over
// h2server sessions.
//
// Register installs the routes in a fixed order:
//
//	GET    {api_root}                   API root document
//	GET    {api_root}/data/...          read a resource
//	POST   {api_root}/data/...          create a child resource
//	PUT    {api_root}/data/...          create or replace a resource
//	DELETE {api_root}/data/...          delete a resource subtree
//	POST   {api_root}/operations/m:op   invoke an operation
//	GET    anything else                static file from the document root
//	default                             400 Bad Request
//
// Resources live in a datastore.Store. Access control is a small subset
// of NACM: a list of users allowed to write data, invoke operations and
// read the ietf-netconf-acm namespace.
package restconf
