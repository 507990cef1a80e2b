// Package astconf reads Asterisk-style configuration files as an ordered
// sequence of named sections. It understands the three dialects consumed by
// dispatchd (user profiles, SIP accounts, dialplan contexts), which share
// the same surface syntax: `[section]` headers followed by `key = value` or
// `key => value` lines, with `;` starting a comment.
package astconf

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Item is a single key/value entry inside a section. Duplicate keys are
// legal in Asterisk configuration and are preserved in file order.
type Item struct {
	Name  string
	Value string
}

// Section is a named configuration block. Items appear in file order.
type Section struct {
	Name  string
	Items []Item
}

// Get returns the value of the first item with the given name, and whether
// such an item exists.
func (s *Section) Get(name string) (string, bool) {
	for _, it := range s.Items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return "", false
}

// ParseError describes a malformed line in a configuration file.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// ReadFile parses the configuration file at path into its ordered sections.
// A missing or unreadable file is reported as an error so callers can keep
// their previous snapshot.
func ReadFile(path string) ([]Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config source: %w", err)
	}
	defer f.Close()

	var sections []Section
	cur := -1 // index into sections; -1 until the first header

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		// Strip comments. Asterisk uses ';' outside of values; the
		// dialects consumed here never embed ';' in a value.
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, &ParseError{File: path, Line: lineNo, Msg: "unterminated section header"}
			}
			name := strings.TrimSpace(line[1:end])
			if name == "" {
				return nil, &ParseError{File: path, Line: lineNo, Msg: "empty section name"}
			}
			sections = append(sections, Section{Name: name})
			cur = len(sections) - 1
			continue
		}

		if cur < 0 {
			return nil, &ParseError{File: path, Line: lineNo, Msg: "item before first section header"}
		}

		key, value, ok := splitItem(line)
		if !ok {
			return nil, &ParseError{File: path, Line: lineNo, Msg: fmt.Sprintf("malformed item %q", line)}
		}
		sections[cur].Items = append(sections[cur].Items, Item{Name: key, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading config source: %w", err)
	}

	return sections, nil
}

// splitItem splits a configuration line into key and value. Both the plain
// `key = value` and the object form `key => value` are accepted.
func splitItem(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	rest := line[i+1:]
	if strings.HasPrefix(rest, ">") {
		rest = rest[1:]
	}
	return key, strings.TrimSpace(rest), key != ""
}
