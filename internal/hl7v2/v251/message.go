package v251

// Message is an ordered list of segments. MSH must be first. Segments are owned by
// the message and are never shared between messages.
type Message struct {
	segments []*Segment
}

// NewMessage creates a message from the given segments in order
func NewMessage(segs ...Segmenter) *Message {
	m := &Message{}
	m.Add(segs...)
	return m
}

// Add appends segments, preserving order
func (m *Message) Add(segs ...Segmenter) {
	for _, s := range segs {
		if s == nil || s.Raw() == nil {
			continue
		}
		m.segments = append(m.segments, s.Raw())
	}
}

// Segments returns the segments in wire order
func (m *Message) Segments() []*Segment {
	return m.segments
}

// Len returns the number of segments
func (m *Message) Len() int {
	return len(m.segments)
}

// Header returns the MSH segment, or nil when the message does not start with one
func (m *Message) Header() *MSH {
	if len(m.segments) == 0 || m.segments[0].Tag() != TagMSH {
		return nil
	}
	return &MSH{m.segments[0]}
}

// First returns the first segment with the given tag
func (m *Message) First(tag string) *Segment {
	for _, s := range m.segments {
		if s.Tag() == tag {
			return s
		}
	}
	return nil
}

// All returns every segment with the given tag
func (m *Message) All(tag string) []*Segment {
	var out []*Segment
	for _, s := range m.segments {
		if s.Tag() == tag {
			out = append(out, s)
		}
	}
	return out
}

// MSA returns the first acknowledgment segment
func (m *Message) MSA() (*MSA, bool) {
	s := m.First(TagMSA)
	if s == nil {
		return nil, false
	}
	return &MSA{s}, true
}

// QAK returns the first query acknowledgment segment
func (m *Message) QAK() (*QAK, bool) {
	s := m.First(TagQAK)
	if s == nil {
		return nil, false
	}
	return &QAK{s}, true
}

// ERRs returns every error segment in order
func (m *Message) ERRs() []*ERR {
	segs := m.All(TagERR)
	out := make([]*ERR, 0, len(segs))
	for _, s := range segs {
		out = append(out, &ERR{s})
	}
	return out
}

// PIDs returns every patient identification segment in order
func (m *Message) PIDs() []*PID {
	segs := m.All(TagPID)
	out := make([]*PID, 0, len(segs))
	for _, s := range segs {
		out = append(out, &PID{s})
	}
	return out
}

// Administration is an RXA with the RXR and OBX segments that follow it
type Administration struct {
	RXA          *RXA
	Routes       []*RXR
	Observations []*OBX
}

// GroupAdministrations associates each RXR and OBX with the closest preceding RXA.
// Segments appearing before the first RXA are not attached to any administration.
func GroupAdministrations(m *Message) []Administration {
	var out []Administration
	for _, s := range m.segments {
		switch s.Tag() {
		case TagRXA:
			out = append(out, Administration{RXA: &RXA{s}})
		case TagRXR:
			if len(out) > 0 {
				cur := &out[len(out)-1]
				cur.Routes = append(cur.Routes, &RXR{s})
			}
		case TagOBX:
			if len(out) > 0 {
				cur := &out[len(out)-1]
				cur.Observations = append(cur.Observations, &OBX{s})
			}
		}
	}
	return out
}
