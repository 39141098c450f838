// Package message parses and builds structured commit messages made of free
// text plus `Name: Value` label lines. Labels encode cross-repository
// provenance (for example the origin revision a migrated commit came from)
// and are scanned later to resume interrupted migrations.
package message

import (
	"regexp"
	"strings"
)

// Separator is the text between a label name and its value.
const Separator = ": "

// labelLine matches a whole line of the form `Name: value`. Names are
// restricted to the characters git trailers conventionally use.
var labelLine = regexp.MustCompile(`^([a-zA-Z0-9_\-]+)` + Separator + `(.*)$`)

// Label is a single `Name: Value` line found in or added to a commit message.
type Label struct {
	Name  string
	Value string
}

// String renders the label as it appears in a commit message.
func (l Label) String() string {
	return l.Name + Separator + l.Value
}

// ParseLabel parses a single label line. The second return is false when the
// line is not a well-formed label.
func ParseLabel(line string) (Label, bool) {
	m := labelLine.FindStringSubmatch(line)
	if m == nil {
		return Label{}, false
	}
	return Label{Name: m[1], Value: m[2]}, true
}

// Message is a commit message whose text is preserved verbatim while its
// label lines can be inspected and extended.
type Message struct {
	text string
}

// Parse wraps raw commit message text. The text is never reformatted; String
// round-trips it exactly until AddLabel changes it.
func Parse(text string) *Message {
	return &Message{text: text}
}

// String returns the current message text.
func (m *Message) String() string {
	return m.text
}

// Labels returns every label line in the message, in order of appearance.
// A name may occur more than once; callers that need a single value should
// use LastLabelValue.
func (m *Message) Labels() []Label {
	var labels []Label
	for _, line := range strings.Split(m.text, "\n") {
		if l, ok := ParseLabel(line); ok {
			labels = append(labels, l)
		}
	}
	return labels
}

// HasLabel reports whether a label line with the given name exists. The name
// match is case-sensitive.
func (m *Message) HasLabel(name string) bool {
	_, ok := m.LastLabelValue(name)
	return ok
}

// LastLabelValue returns the value of the last occurrence of the named
// label. When a message carries the same label several times (for example
// after an amend), the most recently appended one wins.
func (m *Message) LastLabelValue(name string) (string, bool) {
	value, found := "", false
	for _, l := range m.Labels() {
		if l.Name == name {
			value, found = l.Value, true
		}
	}
	return value, found
}

// AddLabel appends `name: value` as a new line at the end of the message,
// unless a label line with the same name is already present anywhere in the
// text. In that case the message is left unchanged and AddLabel returns
// false: the value embedded upstream is the one the resumable-status scan
// must keep seeing, since that scan takes the last occurrence of a label.
func (m *Message) AddLabel(name, value string) bool {
	if m.HasLabel(name) {
		return false
	}
	if m.text != "" && !strings.HasSuffix(m.text, "\n") {
		m.text += "\n"
	}
	m.text += Label{Name: name, Value: value}.String() + "\n"
	return true
}
