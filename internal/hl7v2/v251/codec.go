package v251

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyMessage is returned when the input holds no segments
	ErrEmptyMessage = errors.New("hl7v2: empty message")
	// ErrNoHeader is returned when the first segment is not MSH
	ErrNoHeader = errors.New("hl7v2: first segment is not MSH")
)

// Segment terminators
const (
	TerminatorCR   = "\r"
	TerminatorLF   = "\n"
	TerminatorCRLF = "\r\n"
)

// MLLP framing bytes stripped before decoding
const (
	mllpStart = "\x0b"
	mllpEnd   = "\x1c"
)

// Encoding controls how messages are rendered
type Encoding struct {
	// SegmentTerminator ends every segment, CR by default
	SegmentTerminator string
}

// DefaultEncoding renders with the conventional CR terminator
var DefaultEncoding = Encoding{SegmentTerminator: TerminatorCR}

// Encode renders m with the default encoding
func Encode(m *Message) string {
	return DefaultEncoding.Encode(m)
}

// Encode renders m as pipe/caret text with each segment followed by the terminator
func (e Encoding) Encode(m *Message) string {
	term := e.SegmentTerminator
	if term == "" {
		term = TerminatorCR
	}

	var b strings.Builder
	for _, s := range m.Segments() {
		b.WriteString(encodeSegment(s))
		b.WriteString(term)
	}
	return b.String()
}

// EncodeSegment renders a single segment without a terminator
func EncodeSegment(s Segmenter) string {
	return encodeSegment(s.Raw())
}

func encodeSegment(s *Segment) string {
	fields := s.trimmed()
	if s.Tag() == TagMSH {
		// MSH-1 is the separator itself, so it is not joined as a field
		if len(fields) < 3 {
			return TagMSH + FieldSeparator + EncodingCharacters
		}
		return TagMSH + FieldSeparator + strings.Join(fields[2:], FieldSeparator)
	}
	return strings.Join(fields, FieldSeparator)
}

// Decode parses text into a message. CR, LF and CRLF terminators are treated alike
// and blank lines are skipped. Unknown segment tags are kept as untyped segments.
func Decode(text string) (*Message, error) {
	text = strings.TrimPrefix(text, mllpStart)
	if i := strings.Index(text, mllpEnd); i >= 0 {
		text = text[:i]
	}
	text = strings.ReplaceAll(text, TerminatorCRLF, TerminatorCR)
	text = strings.ReplaceAll(text, TerminatorLF, TerminatorCR)

	m := &Message{}
	for _, line := range strings.Split(text, TerminatorCR) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m.segments = append(m.segments, decodeSegment(strings.TrimLeft(line, " \t")))
	}

	if len(m.segments) == 0 {
		return nil, ErrEmptyMessage
	}
	if m.segments[0].Tag() != TagMSH {
		return m, ErrNoHeader
	}
	return m, nil
}

func decodeSegment(line string) *Segment {
	if strings.HasPrefix(line, TagMSH) && len(line) > 3 {
		sep := line[3:4]
		parts := strings.Split(line[4:], sep)
		fields := make([]string, 0, len(parts)+2)
		fields = append(fields, TagMSH, sep)
		fields = append(fields, parts...)
		return &Segment{fields: fields}
	}
	return &Segment{fields: strings.Split(line, FieldSeparator)}
}
