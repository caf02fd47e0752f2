// Package v251 implements the HL7 v2.5.1 segment model and pipe/caret wire codec
// used for immunization registry exchange.
package v251

import (
	"strings"
)

// Standard encoding characters
const (
	FieldSeparator        = "|"
	ComponentSeparator    = "^"
	RepetitionSeparator   = "~"
	EscapeCharacter       = `\`
	SubcomponentSeparator = "&"

	// EncodingCharacters is the MSH-2 value
	EncodingCharacters = ComponentSeparator + RepetitionSeparator + EscapeCharacter + SubcomponentSeparator
)

// Segmenter is implemented by the untyped Segment and every typed variant
type Segmenter interface {
	Raw() *Segment
}

// Segment is a field-indexed HL7 segment. Index 0 holds the tag, indexes 1..N the
// positional fields. Unset fields read as empty strings.
type Segment struct {
	fields []string
}

// NewSegment creates an empty segment with the given tag
func NewSegment(tag string) *Segment {
	s := &Segment{fields: []string{tag}}
	if tag == "MSH" {
		s.fields = append(s.fields, FieldSeparator, EncodingCharacters)
	}
	return s
}

// Raw returns the segment itself
func (s *Segment) Raw() *Segment {
	return s
}

// Tag returns the segment type identifier, e.g. "PID", or "" for a zero segment
func (s *Segment) Tag() string {
	if s == nil || len(s.fields) == 0 {
		return ""
	}
	return s.fields[0]
}

// Len returns the highest populated field index
func (s *Segment) Len() int {
	if s == nil {
		return 0
	}
	return max(len(s.fields)-1, 0)
}

// Field returns the raw value at index i, or "" when unset
func (s *Segment) Field(i int) string {
	if s == nil || i < 0 || i >= len(s.fields) {
		return ""
	}
	return s.fields[i]
}

// SetField stores a pre-joined value at index i, padding any gap with empty fields.
// Index 0 (the tag) cannot be changed.
func (s *Segment) SetField(i int, value string) {
	if i <= 0 {
		return
	}
	for len(s.fields) <= i {
		s.fields = append(s.fields, "")
	}
	s.fields[i] = value
}

// SetComponents joins parts with the component separator and stores them at index i
func (s *Segment) SetComponents(i int, parts ...string) {
	s.SetField(i, strings.Join(parts, ComponentSeparator))
}

// Components splits the first repetition of field i into its components
func (s *Segment) Components(i int) []string {
	v := s.Field(i)
	if v == "" {
		return nil
	}
	if idx := strings.Index(v, RepetitionSeparator); idx >= 0 && !s.isEncodingField(i) {
		v = v[:idx]
	}
	return strings.Split(v, ComponentSeparator)
}

// Component returns the 1-based component c of field i
func (s *Segment) Component(i, c int) string {
	if s.isEncodingField(i) {
		if c == 1 {
			return s.Field(i)
		}
		return ""
	}
	parts := s.Components(i)
	if c < 1 || c > len(parts) {
		return ""
	}
	return parts[c-1]
}

// Repetitions splits field i on the repetition separator
func (s *Segment) Repetitions(i int) []string {
	v := s.Field(i)
	if v == "" {
		return nil
	}
	if s.isEncodingField(i) {
		return []string{v}
	}
	return strings.Split(v, RepetitionSeparator)
}

// SetText stores free text at index i with reserved characters escaped
func (s *Segment) SetText(i int, text string) {
	s.SetField(i, Escape(text))
}

// Text returns field i with escape sequences resolved
func (s *Segment) Text(i int) string {
	return Unescape(s.Field(i))
}

// Fields returns a copy of all fields including the tag at index 0
func (s *Segment) Fields() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// isEncodingField reports whether i is MSH-1 or MSH-2, which hold delimiters literally
func (s *Segment) isEncodingField(i int) bool {
	return s.Tag() == "MSH" && (i == 1 || i == 2)
}

// trimmed returns the fields without empty trailing positions
func (s *Segment) trimmed() []string {
	if s == nil {
		return nil
	}
	n := len(s.fields)
	for n > 1 && s.fields[n-1] == "" {
		n--
	}
	return s.fields[:n]
}
