package restconf

import (
	"encoding/json"
	"strings"
)

// acmNamespace holds the access control data itself.
const acmNamespace = "ietf-netconf-acm"

// ACL decides which users may modify the datastore.
type ACL struct {
	enabled bool
	allowed map[string]struct{}
}

// NewACL returns an ACL. When enabled is false every request is allowed.
func NewACL(enabled bool, allowedUsers []string) *ACL {
	a := &ACL{enabled: enabled, allowed: make(map[string]struct{}, len(allowedUsers))}
	for _, u := range allowedUsers {
		if u = strings.TrimSpace(u); u != "" {
			a.allowed[u] = struct{}{}
		}
	}
	return a
}

// Privileged reports whether user is on the allowed list.
func (a *ACL) Privileged(user string) bool {
	if a == nil || !a.enabled {
		return true
	}
	_, ok := a.allowed[user]
	return ok
}

// CheckRead returns ErrForbidden when user may not read the resource at p.
func (a *ACL) CheckRead(user, p string) error {
	if firstNamespace(p) == acmNamespace && !a.Privileged(user) {
		return ErrForbidden
	}
	return nil
}

// FilterRead removes the access control data from a document read at p
// when user may not see it. Only the datastore root holds top-level
// members of other namespaces, so other paths pass through CheckRead.
func (a *ACL) FilterRead(user, p string, doc json.RawMessage) (json.RawMessage, error) {
	if p != "" || a.Privileged(user) {
		return doc, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(doc, &members); err != nil || members == nil {
		return doc, nil
	}
	hidden := false
	for name := range members {
		if firstNamespace(name) == acmNamespace {
			delete(members, name)
			hidden = true
		}
	}
	if !hidden {
		return doc, nil
	}
	return json.Marshal(members)
}

// CheckWrite returns ErrForbidden when user may not modify the resource at p.
func (a *ACL) CheckWrite(user, p string) error {
	if !a.Privileged(user) {
		return ErrForbidden
	}
	return nil
}

// CheckInvoke returns ErrForbidden when user may not invoke operations.
func (a *ACL) CheckInvoke(user string) error {
	if !a.Privileged(user) {
		return ErrForbidden
	}
	return nil
}

// firstNamespace returns the module prefix of the first path segment,
// e.g. "ietf-interfaces" for "ietf-interfaces:interfaces/interface=eth0".
func firstNamespace(p string) string {
	p = strings.TrimPrefix(p, "/")
	seg, _, _ := strings.Cut(p, "/")
	ns, _, _ := strings.Cut(seg, ":")
	return ns
}
