// Package ack interprets registry acknowledgment and query response messages.
package ack

import (
	"sort"
	"sync"

	"github.com/drfirst/go-iis/internal/hl7v2/v251"
)

// Code is an MSA-1 acknowledgment code
type Code string

const (
	CodeAccepted         Code = "AA"
	CodeAcceptedWithErrs Code = "AE"
	CodeRejected         Code = "AR"
	CodeNone             Code = ""
)

// Label returns the operator-facing text for a code
func (c Code) Label() string {
	switch c {
	case CodeAccepted:
		return "Accepted"
	case CodeRejected:
		return "Rejected"
	case CodeAcceptedWithErrs:
		return "Accepted (see messages)"
	case CodeNone:
		return "No response"
	default:
		return string(c)
	}
}

// QueryStatus is a QAK-2 query response status
type QueryStatus string

const (
	QueryDataFound     QueryStatus = "OK"
	QueryNoDataFound   QueryStatus = "NF"
	QueryAppError      QueryStatus = "AE"
	QueryAppReject     QueryStatus = "AR"
	QueryTooMuchData   QueryStatus = "TM"
	QueryProtectedData QueryStatus = "PD"
)

// Meaning returns a description of the query status
func (q QueryStatus) Meaning() string {
	switch q {
	case QueryDataFound:
		return "data found"
	case QueryNoDataFound:
		return "no data found"
	case QueryAppError:
		return "application error"
	case QueryAppReject:
		return "application reject"
	case QueryTooMuchData:
		return "too much data"
	case QueryProtectedData:
		return "protected data"
	case "":
		return ""
	default:
		return "unknown status " + string(q)
	}
}

// Outcome is the classified result of a response
type Outcome struct {
	Code        Code
	Warnings    []string
	QueryStatus QueryStatus
	// Message is the decoded response when it was well formed
	Message *v251.Message
}

// Accepted reports whether the registry returned AA
func (o Outcome) Accepted() bool {
	return o.Code == CodeAccepted
}

// NoErrorText is reported for an ERR segment that carries neither text nor code
const NoErrorText = "registry error without text"

// Interpret classifies a raw response. Empty or malformed text yields an empty code
// instead of an error so the attempt can still be logged.
func Interpret(response string) Outcome {
	msg, err := v251.Decode(response)
	if err != nil {
		return Outcome{}
	}
	return InterpretMessage(msg)
}

// InterpretMessage classifies an already decoded response
func InterpretMessage(msg *v251.Message) Outcome {
	out := Outcome{Message: msg}

	msa, ok := msg.MSA()
	if ok {
		out.Code = Code(msa.AckCode())
	}
	if qak, ok := msg.QAK(); ok {
		out.QueryStatus = QueryStatus(qak.ResponseStatus())
	}

	if out.Code != CodeAccepted {
		for _, e := range msg.ERRs() {
			out.Warnings = append(out.Warnings, errorText(e))
		}
	}
	return out
}

// errorText prefers ERR-8, then the ERR-3 text or code
func errorText(e *v251.ERR) string {
	if text := e.UserMessage(); text != "" {
		return text
	}
	if text := v251.Unescape(e.Component(3, 2)); text != "" {
		return text
	}
	if code := v251.Unescape(e.Component(3, 1)); code != "" {
		return "error " + code
	}
	return NoErrorText
}

// SummaryLine is one ack code and its count for a batch
type SummaryLine struct {
	Code  Code
	Label string
	Count int
}

// Tally counts ack codes across a batch
type Tally struct {
	mu     sync.Mutex
	counts map[Code]int
}

// NewTally creates an empty tally
func NewTally() *Tally {
	return &Tally{counts: make(map[Code]int)}
}

// Add records one outcome
func (t *Tally) Add(c Code) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[c]++
}

// Count returns the number of outcomes recorded for c
func (t *Tally) Count(c Code) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[c]
}

// Total returns the number of outcomes recorded
func (t *Tally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

// Summary returns one line per distinct code, ordered by code
func (t *Tally) Summary() []SummaryLine {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := make([]SummaryLine, 0, len(t.counts))
	for code, n := range t.counts {
		lines = append(lines, SummaryLine{Code: code, Label: code.Label(), Count: n})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Code < lines[j].Code })
	return lines
}
