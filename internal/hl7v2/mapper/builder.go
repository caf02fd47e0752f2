// Package mapper builds registry HL7 v2.5.1 messages from EHR immunization records.
package mapper

import (
	"fmt"
	"time"

	"github.com/drfirst/go-iis/internal/hl7v2/v251"
)

// Message types and fixed header values
const (
	MessageTypeVXU = "VXU^V04^VXU_V04"
	MessageTypeQBP = "QBP^Q11^QBP_Q11"

	SendingApplication = "OPENEMR"
	ProcessingID       = "P"
	VersionID          = "2.5.1"
	AcceptAckType      = "ER"
	ApplicationAckType = "AL"

	// DefaultQueryLimit is the RCP-2 record count for QBP queries
	DefaultQueryLimit = 50
)

// Error codes
const (
	CodeNullInput  = "NULL_INPUT"
	CodeIncomplete = "INCOMPLETE_CANDIDATE"
	CodeBadIntent  = "UNSUPPORTED_INTENT"
)

// Intent selects the message the builder produces
type Intent int

const (
	IntentVXU Intent = iota
	IntentHistory
	IntentForecast
)

func (i Intent) String() string {
	switch i {
	case IntentVXU:
		return "VXU"
	case IntentHistory:
		return "Z34"
	case IntentForecast:
		return "Z44"
	default:
		return fmt.Sprintf("Intent(%d)", int(i))
	}
}

// SiteConfig holds the site values placed in outbound messages
type SiteConfig struct {
	// Facility is MSH-4, the registry-assigned sending facility id
	Facility string
	// Region is MSH-6, the receiving facility
	Region string
	// OrgCode is RXA-11.4, the administered-at location
	OrgCode string
	// QueryLimit is RCP-2 for QBP messages
	QueryLimit int
}

// Result is a built message and any non-fatal issues found while mapping
type Result struct {
	Message   *v251.Message
	ControlID string
	Warnings  []string
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// MapError represents a mapping error with context
type MapError struct {
	Field   string
	Code    string
	Message string
	Cause   error
}

func (e *MapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *MapError) Unwrap() error {
	return e.Cause
}

// Builder maps domain records to VXU and QBP messages
type Builder struct {
	site SiteConfig
	now  func() time.Time
}

// NewBuilder creates a builder for the given site
func NewBuilder(site SiteConfig) *Builder {
	if site.QueryLimit <= 0 {
		site.QueryLimit = DefaultQueryLimit
	}
	return &Builder{site: site, now: time.Now}
}

// WithClock replaces the time source, used for deterministic control ids
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// header builds the MSH shared by every outbound message
func (b *Builder) header(now time.Time, messageType, controlID string) *v251.MSH {
	msh := v251.NewMSH()
	msh.SetSendingApplication(SendingApplication)
	msh.SetSendingFacility(b.site.Facility)
	msh.SetReceivingFacility(b.site.Region)
	msh.SetDateTime(now.UTC().Format(layoutTimestamp) + "+0000")
	msh.SetMessageType(messageType)
	msh.SetControlID(controlID)
	msh.SetProcessingID(ProcessingID)
	msh.SetVersionID(VersionID)
	msh.SetAcceptAckType(AcceptAckType)
	msh.SetApplicationAckType(ApplicationAckType)
	return msh
}
