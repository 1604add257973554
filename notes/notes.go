// Package notes reads the plain-text model wish-list format: top-level
// entries are hyphen bullets naming a model family, sub-bullets are
// asterisk lines describing its generative assumptions (with "~" read as
// "distributed as").
package notes

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Entry is one model on the wish-list.
type Entry struct {
	Name    string   `json:"name" yaml:"name"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
}

// ParseError reports a malformed line with its position.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Parse reads a wish-list document. Lines starting with "-" open a new
// entry, lines starting with "*" (after optional indentation) add a detail
// to the current entry, blank lines are ignored. Any other non-blank line
// is a continuation of the previous detail or name.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if !utf8.ValidString(raw) {
			return nil, &ParseError{Line: lineNo, Reason: "invalid UTF-8"}
		}

		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, "-"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "-"))
			if name == "" {
				return nil, &ParseError{Line: lineNo, Reason: "entry has no name"}
			}
			entries = append(entries, Entry{Name: name})

		case strings.HasPrefix(line, "*"):
			if len(entries) == 0 {
				return nil, &ParseError{Line: lineNo, Reason: "detail before any entry"}
			}
			detail := strings.TrimSpace(strings.TrimPrefix(line, "*"))
			cur := &entries[len(entries)-1]
			cur.Details = append(cur.Details, detail)

		default:
			// Wrapped continuation of the preceding name or detail.
			if len(entries) == 0 {
				return nil, &ParseError{Line: lineNo, Reason: "text before any entry"}
			}
			cur := &entries[len(entries)-1]
			if len(cur.Details) == 0 {
				cur.Name += " " + line
			} else {
				cur.Details[len(cur.Details)-1] += " " + line
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading wish-list: %w", err)
	}
	return entries, nil
}

// Validate checks the document property directly: the input is valid UTF-8
// and every entry is a name line followed by zero or more sub-bullets.
// Returns the number of entries on success.
func Validate(r io.Reader) (int, error) {
	entries, err := Parse(r)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
