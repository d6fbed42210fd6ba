package repl

import (
	"fmt"
	"sort"
	"strings"
)

// Completer resolves command names typed in the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the given command names.
func NewCompleter(commands []string) *Completer {
	c := &Completer{commands: append([]string(nil), commands...)}
	sort.Strings(c.commands)
	return c
}

// Commands returns the known command names in order.
func (c *Completer) Commands() []string {
	return c.commands
}

// Complete returns completion suggestions for the given prefix.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}

// Resolve returns the command named word, or the only command word is a
// prefix of.
func (c *Completer) Resolve(word string) (string, error) {
	matches := c.Complete(word)
	for _, m := range matches {
		if m == word {
			return m, nil
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("unknown command %q (try help)", word)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("ambiguous command %q: %s", word, strings.Join(matches, ", "))
}
