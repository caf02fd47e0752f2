package v251

// Segment tags
const (
	TagMSH = "MSH"
	TagPID = "PID"
	TagPD1 = "PD1"
	TagORC = "ORC"
	TagRXA = "RXA"
	TagRXR = "RXR"
	TagOBX = "OBX"
	TagMSA = "MSA"
	TagERR = "ERR"
	TagQAK = "QAK"
	TagQPD = "QPD"
	TagRCP = "RCP"
)

// Typed returns the variant for a known tag, or the untyped segment itself
func Typed(s *Segment) Segmenter {
	switch s.Tag() {
	case TagMSH:
		return &MSH{s}
	case TagPID:
		return &PID{s}
	case TagPD1:
		return &PD1{s}
	case TagORC:
		return &ORC{s}
	case TagRXA:
		return &RXA{s}
	case TagRXR:
		return &RXR{s}
	case TagOBX:
		return &OBX{s}
	case TagMSA:
		return &MSA{s}
	case TagERR:
		return &ERR{s}
	case TagQAK:
		return &QAK{s}
	case TagQPD:
		return &QPD{s}
	case TagRCP:
		return &RCP{s}
	default:
		return s
	}
}

// MSH is the message header
type MSH struct{ *Segment }

// NewMSH creates a header with MSH-1 and MSH-2 populated
func NewMSH() *MSH { return &MSH{NewSegment(TagMSH)} }

// SendingApplication returns MSH-3
func (m *MSH) SendingApplication() string { return m.Field(3) }
// SetSendingApplication sets MSH-3
func (m *MSH) SetSendingApplication(v string) { m.SetField(3, v) }

// SendingFacility returns MSH-4
func (m *MSH) SendingFacility() string { return m.Field(4) }
// SetSendingFacility sets MSH-4
func (m *MSH) SetSendingFacility(v string) { m.SetField(4, v) }

// ReceivingApplication returns MSH-5
func (m *MSH) ReceivingApplication() string { return m.Field(5) }
// SetReceivingApplication sets MSH-5
func (m *MSH) SetReceivingApplication(v string) { m.SetField(5, v) }

// ReceivingFacility returns MSH-6
func (m *MSH) ReceivingFacility() string { return m.Field(6) }
// SetReceivingFacility sets MSH-6
func (m *MSH) SetReceivingFacility(v string) { m.SetField(6, v) }

// DateTime returns MSH-7
func (m *MSH) DateTime() string { return m.Field(7) }
// SetDateTime sets MSH-7
func (m *MSH) SetDateTime(v string) { m.SetField(7, v) }

// MessageType returns MSH-9
func (m *MSH) MessageType() string { return m.Field(9) }
// SetMessageType sets MSH-9
func (m *MSH) SetMessageType(v string) { m.SetField(9, v) }

// ControlID returns MSH-10
func (m *MSH) ControlID() string { return m.Field(10) }
// SetControlID sets MSH-10
func (m *MSH) SetControlID(v string) { m.SetField(10, v) }

// ProcessingID returns MSH-11
func (m *MSH) ProcessingID() string { return m.Field(11) }
// SetProcessingID sets MSH-11
func (m *MSH) SetProcessingID(v string) { m.SetField(11, v) }

// VersionID returns MSH-12
func (m *MSH) VersionID() string { return m.Field(12) }
// SetVersionID sets MSH-12
func (m *MSH) SetVersionID(v string) { m.SetField(12, v) }

// AcceptAckType returns MSH-15
func (m *MSH) AcceptAckType() string { return m.Field(15) }
// SetAcceptAckType sets MSH-15
func (m *MSH) SetAcceptAckType(v string) { m.SetField(15, v) }

// ApplicationAckType returns MSH-16
func (m *MSH) ApplicationAckType() string { return m.Field(16) }
// SetApplicationAckType sets MSH-16
func (m *MSH) SetApplicationAckType(v string) { m.SetField(16, v) }

// ProfileID returns MSH-21
func (m *MSH) ProfileID() string { return m.Field(21) }
// SetProfileID sets MSH-21
func (m *MSH) SetProfileID(v string) { m.SetField(21, v) }

// PID is the patient identification segment
type PID struct{ *Segment }

// NewPID creates an empty PID segment
func NewPID() *PID { return &PID{NewSegment(TagPID)} }

// IdentifierList returns PID-3
func (p *PID) IdentifierList() string { return p.Field(3) }
// SetIdentifierList sets PID-3
func (p *PID) SetIdentifierList(v string) { p.SetField(3, v) }

// PatientName returns PID-5
func (p *PID) PatientName() string { return p.Field(5) }
// SetPatientName sets PID-5
func (p *PID) SetPatientName(v string) { p.SetField(5, v) }

// FamilyName returns PID-5.1
func (p *PID) FamilyName() string { return p.Component(5, 1) }

// GivenName returns PID-5.2
func (p *PID) GivenName() string { return p.Component(5, 2) }

// DateOfBirth returns PID-7
func (p *PID) DateOfBirth() string { return p.Field(7) }
// SetDateOfBirth sets PID-7
func (p *PID) SetDateOfBirth(v string) { p.SetField(7, v) }

// Sex returns PID-8
func (p *PID) Sex() string { return p.Field(8) }
// SetSex sets PID-8
func (p *PID) SetSex(v string) { p.SetField(8, v) }

// Race returns PID-10
func (p *PID) Race() string { return p.Field(10) }
// SetRace sets PID-10
func (p *PID) SetRace(v string) { p.SetField(10, v) }

// EthnicGroup returns PID-22
func (p *PID) EthnicGroup() string { return p.Field(22) }
// SetEthnicGroup sets PID-22
func (p *PID) SetEthnicGroup(v string) { p.SetField(22, v) }

// PD1 carries registry publicity and protection indicators
type PD1 struct{ *Segment }

// NewPD1 creates an empty PD1 segment
func NewPD1() *PD1 { return &PD1{NewSegment(TagPD1)} }

// ProtectionIndicator returns PD1-12
func (p *PD1) ProtectionIndicator() string { return p.Field(12) }
// SetProtectionIndicator sets PD1-12
func (p *PD1) SetProtectionIndicator(v string) { p.SetField(12, v) }

// ProtectionIndicatorDate returns PD1-13
func (p *PD1) ProtectionIndicatorDate() string { return p.Field(13) }
// SetProtectionIndicatorDate sets PD1-13
func (p *PD1) SetProtectionIndicatorDate(v string) { p.SetField(13, v) }

// RegistryStatus returns PD1-16
func (p *PD1) RegistryStatus() string { return p.Field(16) }
// SetRegistryStatus sets PD1-16
func (p *PD1) SetRegistryStatus(v string) { p.SetField(16, v) }

// RegistryStatusDate returns PD1-17
func (p *PD1) RegistryStatusDate() string { return p.Field(17) }
// SetRegistryStatusDate sets PD1-17
func (p *PD1) SetRegistryStatusDate(v string) { p.SetField(17, v) }

// ORC is the common order segment
type ORC struct{ *Segment }

// NewORC creates an empty ORC segment
func NewORC() *ORC { return &ORC{NewSegment(TagORC)} }

// OrderControl returns ORC-1
func (o *ORC) OrderControl() string { return o.Field(1) }
// SetOrderControl sets ORC-1
func (o *ORC) SetOrderControl(v string) { o.SetField(1, v) }

// FillerOrderNumber returns ORC-3
func (o *ORC) FillerOrderNumber() string { return o.Field(3) }
// SetFillerOrderNumber sets ORC-3
func (o *ORC) SetFillerOrderNumber(v string) { o.SetField(3, v) }

// OrderingProvider returns ORC-12
func (o *ORC) OrderingProvider() string { return o.Field(12) }
// SetOrderingProvider sets ORC-12
func (o *ORC) SetOrderingProvider(v string) { o.SetField(12, v) }

// RXA is the pharmacy/treatment administration segment
type RXA struct{ *Segment }

// NewRXA creates an empty RXA segment
func NewRXA() *RXA { return &RXA{NewSegment(TagRXA)} }

// GiveSubIDCounter returns RXA-1
func (r *RXA) GiveSubIDCounter() string { return r.Field(1) }
// SetGiveSubIDCounter sets RXA-1
func (r *RXA) SetGiveSubIDCounter(v string) { r.SetField(1, v) }

// AdministrationSubIDCounter returns RXA-2
func (r *RXA) AdministrationSubIDCounter() string { return r.Field(2) }
// SetAdministrationSubIDCounter sets RXA-2
func (r *RXA) SetAdministrationSubIDCounter(v string) { r.SetField(2, v) }

// StartAdministration returns RXA-3
func (r *RXA) StartAdministration() string { return r.Field(3) }
// SetStartAdministration sets RXA-3
func (r *RXA) SetStartAdministration(v string) { r.SetField(3, v) }

// AdministeredCode returns RXA-5
func (r *RXA) AdministeredCode() string { return r.Field(5) }
// SetAdministeredCode sets RXA-5
func (r *RXA) SetAdministeredCode(v string) { r.SetField(5, v) }

// AdministeredAmount returns RXA-6
func (r *RXA) AdministeredAmount() string { return r.Field(6) }
// SetAdministeredAmount sets RXA-6
func (r *RXA) SetAdministeredAmount(v string) { r.SetField(6, v) }

// AdministeredUnits returns RXA-7
func (r *RXA) AdministeredUnits() string { return r.Field(7) }
// SetAdministeredUnits sets RXA-7
func (r *RXA) SetAdministeredUnits(v string) { r.SetField(7, v) }

// AdministrationNotes returns RXA-9
func (r *RXA) AdministrationNotes() string { return r.Field(9) }
// SetAdministrationNotes sets RXA-9
func (r *RXA) SetAdministrationNotes(v string) { r.SetField(9, v) }

// AdministeringProvider returns RXA-10
func (r *RXA) AdministeringProvider() string { return r.Field(10) }
// SetAdministeringProvider sets RXA-10
func (r *RXA) SetAdministeringProvider(v string) { r.SetField(10, v) }

// AdministeredAtLocation returns RXA-11
func (r *RXA) AdministeredAtLocation() string { return r.Field(11) }
// SetAdministeredAtLocation sets RXA-11
func (r *RXA) SetAdministeredAtLocation(v string) { r.SetField(11, v) }

// LotNumber returns RXA-15
func (r *RXA) LotNumber() string { return r.Field(15) }
// SetLotNumber sets RXA-15
func (r *RXA) SetLotNumber(v string) { r.SetField(15, v) }

// ExpirationDate returns RXA-16
func (r *RXA) ExpirationDate() string { return r.Field(16) }
// SetExpirationDate sets RXA-16
func (r *RXA) SetExpirationDate(v string) { r.SetField(16, v) }

// Manufacturer returns RXA-17
func (r *RXA) Manufacturer() string { return r.Field(17) }
// SetManufacturer sets RXA-17
func (r *RXA) SetManufacturer(v string) { r.SetField(17, v) }

// CompletionStatus returns RXA-20
func (r *RXA) CompletionStatus() string { return r.Field(20) }
// SetCompletionStatus sets RXA-20
func (r *RXA) SetCompletionStatus(v string) { r.SetField(20, v) }

// ActionCode returns RXA-21
func (r *RXA) ActionCode() string { return r.Field(21) }
// SetActionCode sets RXA-21
func (r *RXA) SetActionCode(v string) { r.SetField(21, v) }

// RXR is the pharmacy/treatment route segment
type RXR struct{ *Segment }

// NewRXR creates an empty RXR segment
func NewRXR() *RXR { return &RXR{NewSegment(TagRXR)} }

// Route returns RXR-1
func (r *RXR) Route() string { return r.Field(1) }
// SetRoute sets RXR-1
func (r *RXR) SetRoute(v string) { r.SetField(1, v) }

// Site returns RXR-2
func (r *RXR) Site() string { return r.Field(2) }
// SetSite sets RXR-2
func (r *RXR) SetSite(v string) { r.SetField(2, v) }

// OBX is the observation segment
type OBX struct{ *Segment }

// NewOBX creates an empty OBX segment
func NewOBX() *OBX { return &OBX{NewSegment(TagOBX)} }

// SequenceID returns OBX-1
func (o *OBX) SequenceID() string { return o.Field(1) }
// SetSequenceID sets OBX-1
func (o *OBX) SetSequenceID(v string) { o.SetField(1, v) }

// ValueType returns OBX-2
func (o *OBX) ValueType() string { return o.Field(2) }
// SetValueType sets OBX-2
func (o *OBX) SetValueType(v string) { o.SetField(2, v) }

// ObservationIdentifier returns OBX-3
func (o *OBX) ObservationIdentifier() string { return o.Field(3) }
// SetObservationIdentifier sets OBX-3
func (o *OBX) SetObservationIdentifier(v string) { o.SetField(3, v) }

// ObservationSubID returns OBX-4
func (o *OBX) ObservationSubID() string { return o.Field(4) }
// SetObservationSubID sets OBX-4
func (o *OBX) SetObservationSubID(v string) { o.SetField(4, v) }

// ObservationValue returns OBX-5
func (o *OBX) ObservationValue() string { return o.Field(5) }
// SetObservationValue sets OBX-5
func (o *OBX) SetObservationValue(v string) { o.SetField(5, v) }

// ResultStatus returns OBX-11
func (o *OBX) ResultStatus() string { return o.Field(11) }
// SetResultStatus sets OBX-11
func (o *OBX) SetResultStatus(v string) { o.SetField(11, v) }

// ObservationTime returns OBX-14
func (o *OBX) ObservationTime() string { return o.Field(14) }
// SetObservationTime sets OBX-14
func (o *OBX) SetObservationTime(v string) { o.SetField(14, v) }

// MSA is the message acknowledgment segment
type MSA struct{ *Segment }

// NewMSA creates an empty MSA segment
func NewMSA() *MSA { return &MSA{NewSegment(TagMSA)} }

// AckCode returns MSA-1
func (m *MSA) AckCode() string { return m.Field(1) }
// SetAckCode sets MSA-1
func (m *MSA) SetAckCode(v string) { m.SetField(1, v) }

// ControlID returns MSA-2
func (m *MSA) ControlID() string { return m.Field(2) }
// SetControlID sets MSA-2
func (m *MSA) SetControlID(v string) { m.SetField(2, v) }

// TextMessage returns MSA-3 with escapes resolved
func (m *MSA) TextMessage() string { return m.Text(3) }

// ERR is the error segment
type ERR struct{ *Segment }

// NewERR creates an empty ERR segment
func NewERR() *ERR { return &ERR{NewSegment(TagERR)} }

// Location returns ERR-2
func (e *ERR) Location() string { return e.Field(2) }

// ErrorCode returns ERR-3
func (e *ERR) ErrorCode() string { return e.Field(3) }

// Severity returns ERR-4
func (e *ERR) Severity() string { return e.Field(4) }
// SetSeverity sets ERR-4
func (e *ERR) SetSeverity(v string) { e.SetField(4, v) }

// UserMessage returns ERR-8 with escapes resolved
func (e *ERR) UserMessage() string { return e.Text(8) }
// SetUserMessage sets ERR-8, escaping reserved characters
func (e *ERR) SetUserMessage(v string) { e.SetText(8, v) }

// QAK is the query acknowledgment segment
type QAK struct{ *Segment }

// NewQAK creates an empty QAK segment
func NewQAK() *QAK { return &QAK{NewSegment(TagQAK)} }

// QueryTag returns QAK-1
func (q *QAK) QueryTag() string { return q.Field(1) }

// ResponseStatus returns QAK-2
func (q *QAK) ResponseStatus() string { return q.Field(2) }
// SetResponseStatus sets QAK-2
func (q *QAK) SetResponseStatus(v string) { q.SetField(2, v) }

// QueryName returns QAK-3
func (q *QAK) QueryName() string { return q.Field(3) }

// QPD is the query parameter definition segment
type QPD struct{ *Segment }

// NewQPD creates an empty QPD segment
func NewQPD() *QPD { return &QPD{NewSegment(TagQPD)} }

// MessageQueryName returns QPD-1
func (q *QPD) MessageQueryName() string { return q.Field(1) }
// SetMessageQueryName sets QPD-1
func (q *QPD) SetMessageQueryName(v string) { q.SetField(1, v) }

// QueryTag returns QPD-2
func (q *QPD) QueryTag() string { return q.Field(2) }
// SetQueryTag sets QPD-2
func (q *QPD) SetQueryTag(v string) { q.SetField(2, v) }

// PatientIdentifier returns QPD-3
func (q *QPD) PatientIdentifier() string { return q.Field(3) }
// SetPatientIdentifier sets QPD-3
func (q *QPD) SetPatientIdentifier(v string) { q.SetField(3, v) }

// PatientName returns QPD-4
func (q *QPD) PatientName() string { return q.Field(4) }
// SetPatientName sets QPD-4
func (q *QPD) SetPatientName(v string) { q.SetField(4, v) }

// DateOfBirth returns QPD-6
func (q *QPD) DateOfBirth() string { return q.Field(6) }
// SetDateOfBirth sets QPD-6
func (q *QPD) SetDateOfBirth(v string) { q.SetField(6, v) }

// Sex returns QPD-7
func (q *QPD) Sex() string { return q.Field(7) }
// SetSex sets QPD-7
func (q *QPD) SetSex(v string) { q.SetField(7, v) }

// RCP is the response control parameter segment
type RCP struct{ *Segment }

// NewRCP creates an empty RCP segment
func NewRCP() *RCP { return &RCP{NewSegment(TagRCP)} }

// Priority returns RCP-1
func (r *RCP) Priority() string { return r.Field(1) }
// SetPriority sets RCP-1
func (r *RCP) SetPriority(v string) { r.SetField(1, v) }

// QuantityLimit returns RCP-2
func (r *RCP) QuantityLimit() string { return r.Field(2) }
// SetQuantityLimit sets RCP-2
func (r *RCP) SetQuantityLimit(v string) { r.SetField(2, v) }
