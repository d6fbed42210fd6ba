package route

import (
	"fmt"
	"strings"
)

// Predicate decides whether a route entry applies to a request.
// Implementations must be pure: the result depends only on the arguments.
type Predicate interface {
	Match(method, path string) bool
	String() string
}

// ExactPath matches one path, any method.
type ExactPath string

// Match reports whether path equals p.
func (p ExactPath) Match(_, path string) bool { return path == string(p) }

// String renders p for route listings.
func (p ExactPath) String() string { return fmt.Sprintf("path == %q", string(p)) }

// PrefixPath matches every path starting with the prefix, any method.
// The comparison is a plain string prefix: "/a" also matches "/ab".
type PrefixPath string

// Match reports whether path starts with p.
func (p PrefixPath) Match(_, path string) bool { return strings.HasPrefix(path, string(p)) }

// String renders p for route listings.
func (p PrefixPath) String() string { return fmt.Sprintf("path ^= %q", string(p)) }

// Method matches one HTTP method, any path.
type Method string

// Match reports whether method equals m.
func (m Method) Match(method, _ string) bool { return method == string(m) }

// String renders m for route listings.
func (m Method) String() string { return "method == " + string(m) }

// Any matches every request.
type Any struct{}

// Match always reports true.
func (Any) Match(_, _ string) bool { return true }

// String returns "any".
func (Any) String() string { return "any" }

// All matches when every child predicate matches. An empty All matches
// every request.
type All []Predicate

// Match reports whether every predicate in a matches.
func (a All) Match(method, path string) bool {
	for _, p := range a {
		if !p.Match(method, path) {
			return false
		}
	}
	return true
}

// String joins the children with "&&".
func (a All) String() string {
	if len(a) == 0 {
		return "any"
	}
	parts := make([]string, len(a))
	for i, p := range a {
		parts[i] = p.String()
	}
	return strings.Join(parts, " && ")
}

// Func adapts an ordinary function to a Predicate. Name is used for String.
type Func struct {
	Name string
	Fn   func(method, path string) bool
}

// Match calls f.Fn.
func (f Func) Match(method, path string) bool { return f.Fn(method, path) }

// String returns f.Name, or "func" when it is empty.
func (f Func) String() string {
	if f.Name == "" {
		return "func"
	}
	return f.Name
}

// MethodPath matches method and exact path.
func MethodPath(method, path string) Predicate {
	return All{Method(method), ExactPath(path)}
}

// MethodPrefix matches method and path prefix.
func MethodPrefix(method, prefix string) Predicate {
	return All{Method(method), PrefixPath(prefix)}
}
