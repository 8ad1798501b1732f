// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: exec/classifier.go
// Summary: Decides whether a command line is safe for direct execution.
// Usage: Pure string analysis; never inspects the filesystem.

package exec

import "strings"

// Decision is the execution route for a command line.
type Decision int

const (
	DecisionPty Decision = iota
	DecisionDirect
)

func (d Decision) String() string {
	if d == DecisionDirect {
		return "direct"
	}
	return "pty"
}

// maxDirectCommandLen bounds command lines eligible for direct execution.
const maxDirectCommandLen = 2048

// DefaultAllowlist holds first tokens eligible for direct execution. The
// list bounds the blast radius: a command conditionally becoming interactive
// costs a hung child, so only predictably non-interactive tools are listed.
func DefaultAllowlist() []string {
	return []string{
		"ls", "pwd", "echo", "whoami", "date", "cat", "head", "tail",
		"wc", "env", "which", "hostname",
	}
}

// DefaultDenylist holds programs known to take over the terminal.
func DefaultDenylist() []string {
	return []string{
		"vim", "vi", "nano", "emacs", "less", "more", "top", "htop",
		"ssh", "tmux", "screen", "fzf",
	}
}

// Classifier routes command lines between the direct executor and the PTY.
type Classifier struct {
	allow map[string]struct{}
	deny  map[string]struct{}
}

// NewClassifier builds a classifier; nil lists select the defaults.
func NewClassifier(allow, deny []string) *Classifier {
	if allow == nil {
		allow = DefaultAllowlist()
	}
	if deny == nil {
		deny = DefaultDenylist()
	}
	c := &Classifier{
		allow: make(map[string]struct{}, len(allow)),
		deny:  make(map[string]struct{}, len(deny)),
	}
	for _, a := range allow {
		c.allow[a] = struct{}{}
	}
	for _, d := range deny {
		c.deny[d] = struct{}{}
	}
	return c
}

// Classify returns Direct only when every safety condition holds; any doubt
// routes to the PTY. It is total over finite strings.
func (c *Classifier) Classify(command string) Decision {
	if len(command) > maxDirectCommandLen {
		return DecisionPty
	}
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return DecisionPty
	}
	if _, ok := c.allow[tokens[0]]; !ok {
		return DecisionPty
	}
	for _, tok := range tokens {
		if _, ok := c.deny[tok]; ok {
			return DecisionPty
		}
	}
	if hasShellMetachars(command) {
		return DecisionPty
	}
	return DecisionDirect
}

// hasShellMetachars reports unescaped, unquoted pipeline/redirection/expansion
// characters. The direct executor spawns without a shell, so any of these
// would change meaning.
func hasShellMetachars(command string) bool {
	var escaped, inSingle, inDouble bool
	runes := []rune(command)
	for i, r := range runes {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle:
			// Everything is literal inside single quotes.
		case r == '|' || r == '<' || r == '>' || r == '&' || r == '`':
			return true
		case r == '$' && i+1 < len(runes) && runes[i+1] == '(':
			return true
		}
	}
	return false
}
