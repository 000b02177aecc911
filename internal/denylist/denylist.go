package denylist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verdict is the outcome of a denylist decision.
type Verdict string

const (
	Allow Verdict = "allow"
	Block Verdict = "block"
)

// Patterns holds the raw denylist tokens in evaluation order.
type Patterns struct {
	Commands []string `yaml:"commands"`
}

// Denylist matches command text against an ordered set of tokens.
// It is immutable after construction and safe for concurrent use.
type Denylist struct {
	commands []string
}

// New creates a Denylist from raw patterns. Empty tokens are dropped
// since they would match every command.
func New(p Patterns) *Denylist {
	d := &Denylist{commands: make([]string, 0, len(p.Commands))}
	for _, c := range p.Commands {
		if c == "" {
			continue
		}
		d.commands = append(d.commands, c)
	}
	return d
}

// NewDefault creates a Denylist with the compiled-in tokens.
func NewDefault() *Denylist {
	return New(DefaultPatterns)
}

// Load reads a denylist from a YAML file. Falls back to defaults if file doesn't exist.
func Load(path string) (*Denylist, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewDefault(), nil
		}
		path = filepath.Join(home, ".raspguard", "denylist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("failed to read denylist: %w", err)
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse denylist: %w", err)
	}

	return New(p), nil
}

// Decide returns Block iff command contains any token as a contiguous,
// case-sensitive substring. A nil command is always allowed.
func (d *Denylist) Decide(command *string) Verdict {
	if command == nil {
		return Allow
	}
	if _, ok := d.Match(*command); ok {
		return Block
	}
	return Allow
}

// Match returns the first token, in list order, found in command.
// No tokenization or normalization is applied: "ls" matches "/tools/ls_helper"
// and "RM" does not match "rm".
func (d *Denylist) Match(command string) (string, bool) {
	for _, token := range d.commands {
		if strings.Contains(command, token) {
			return token, true
		}
	}
	return "", false
}

// Commands returns a copy of the ordered token list.
func (d *Denylist) Commands() []string {
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

// Len returns the number of tokens.
func (d *Denylist) Len() int {
	return len(d.commands)
}
