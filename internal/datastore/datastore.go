package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound = errors.New("datastore: resource not found")
	ErrExists   = errors.New("datastore: resource already exists")
	ErrBadInput = errors.New("datastore: invalid resource")
	ErrClosed   = errors.New("datastore: closed")
)

// Store is the resource store used by the RESTCONF handlers.
// Implementations are safe for concurrent use.
type Store interface {
	// Get returns the resource at p, assembling it from descendants when
	// p has no document of its own. Returns ErrNotFound when neither exists.
	Get(ctx context.Context, p string) (*Entry, error)

	// Create stores doc at p. Returns ErrExists when p already holds a
	// document.
	Create(ctx context.Context, p string, doc []byte) error

	// Replace stores doc at p, dropping any descendants, and reports
	// whether the resource was newly created.
	Replace(ctx context.Context, p string, doc []byte) (created bool, err error)

	// Delete removes p and its descendants. Returns ErrNotFound when
	// there was nothing to remove.
	Delete(ctx context.Context, p string) error

	// List returns the stored paths under prefix in key order.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Entry is a resource read from the store.
type Entry struct {
	Path     string
	Value    json.RawMessage
	Modified time.Time
}

// CleanPath normalizes a resource path: no leading or trailing slash,
// no empty or dot segments. The data root itself is "".
func CleanPath(p string) (string, error) {
	if strings.Contains(p, "\x00") {
		return "", ErrBadInput
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrBadInput
		}
	}
	c := path.Clean("/" + p)
	return strings.TrimPrefix(c, "/"), nil
}

// validDoc checks that doc is a single JSON value.
func validDoc(doc []byte) error {
	if len(doc) == 0 || !json.Valid(doc) {
		return ErrBadInput
	}
	return nil
}

// assemble builds the document for base from stored entries at base and
// below it. Object documents absorb their descendants; any other
// document type is returned as is.
func assemble(base string, own *storedDoc, children map[string]storedDoc) (*Entry, error) {
	var root any
	modified := time.Time{}

	if own != nil {
		if err := json.Unmarshal(own.doc, &root); err != nil {
			return nil, err
		}
		modified = own.modified
		if _, ok := root.(map[string]any); !ok || len(children) == 0 {
			return &Entry{Path: base, Value: own.doc, Modified: modified}, nil
		}
	} else {
		root = map[string]any{}
	}

	// Shallower documents go first so deeper ones override their members.
	rels := make([]string, 0, len(children))
	for rel := range children {
		rels = append(rels, rel)
	}
	sort.Slice(rels, func(i, j int) bool {
		di, dj := strings.Count(rels[i], "/"), strings.Count(rels[j], "/")
		if di != dj {
			return di < dj
		}
		return rels[i] < rels[j]
	})

	obj := root.(map[string]any)
	for _, rel := range rels {
		sd := children[rel]
		var v any
		if err := json.Unmarshal(sd.doc, &v); err != nil {
			return nil, err
		}
		insert(obj, strings.Split(rel, "/"), v)
		if sd.modified.After(modified) {
			modified = sd.modified
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return &Entry{Path: base, Value: raw, Modified: modified}, nil
}

// insert places v at segs inside obj, creating intermediate objects.
// When both the existing member and v are objects, v's members are
// merged over the existing ones.
func insert(obj map[string]any, segs []string, v any) {
	key := segs[0]
	if len(segs) == 1 {
		cur, curObj := obj[key].(map[string]any)
		add, addObj := v.(map[string]any)
		if curObj && addObj {
			for k, val := range add {
				cur[k] = val
			}
			return
		}
		obj[key] = v
		return
	}
	next, ok := obj[key].(map[string]any)
	if !ok {
		next = map[string]any{}
		obj[key] = next
	}
	insert(next, segs[1:], v)
}

// storedDoc is a document with its modification time.
type storedDoc struct {
	doc      []byte
	modified time.Time
}

// LimitDepth prunes a JSON document to depth levels of nesting.
// depth <= 0 means unbounded. With depth 1 the top-level object keeps its
// leaf members and its container members are returned empty.
func LimitDepth(doc []byte, depth int) ([]byte, error) {
	if depth <= 0 {
		return doc, nil
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	return json.Marshal(prune(v, depth))
}

func prune(v any, depth int) any {
	switch t := v.(type) {
	case map[string]any:
		if depth <= 0 {
			return map[string]any{}
		}
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = prune(c, depth-1)
		}
		return out
	case []any:
		// list entries share their list's level
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = prune(c, depth)
		}
		return out
	default:
		return v
	}
}
