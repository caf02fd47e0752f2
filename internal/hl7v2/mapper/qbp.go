package mapper

import (
	"strconv"

	"github.com/drfirst/go-iis/internal/domain/immunization"
	"github.com/drfirst/go-iis/internal/hl7v2/v251"
)

// Query names for QPD-1 and profiles for MSH-21
const (
	QueryHistory  = "Z34^Request Complete Immunization History^HL70471"
	QueryForecast = "Z44^Request Evaluated History and Forecast^HL70471"

	ProfileHistory  = "Z34^CDCPHINVS"
	ProfileForecast = "Z44^CDCPHINVS"
)

// BuildQBP maps a patient to a QBP^Q11 history or forecast query
func (b *Builder) BuildQBP(p *immunization.Patient, intent Intent) (*Result, error) {
	if p == nil {
		return nil, &MapError{Field: "patient", Code: CodeNullInput, Message: "patient is nil"}
	}

	var queryName, profile string
	switch intent {
	case IntentHistory:
		queryName, profile = QueryHistory, ProfileHistory
	case IntentForecast:
		queryName, profile = QueryForecast, ProfileForecast
	default:
		return nil, &MapError{Field: "QPD-1", Code: CodeBadIntent, Message: "intent " + intent.String() + " is not a query"}
	}

	now := b.now()
	result := &Result{
		ControlID: now.Format(layoutTimestamp) + "QBP" + strconv.FormatInt(p.PID, 10),
	}

	msh := b.header(now, MessageTypeQBP, result.ControlID)
	msh.SetProfileID(profile)

	qpd := v251.NewQPD()
	qpd.SetMessageQueryName(queryName)
	qpd.SetQueryTag(result.ControlID)
	qpd.SetPatientIdentifier(patientIdentifier(p.PID))
	qpd.SetPatientName(PatientName(p.LastName, p.FirstName))
	qpd.SetDateOfBirth(CompactDate(p.DOB))
	qpd.SetSex(SexCode(p.Sex))

	rcp := v251.NewRCP()
	rcp.SetPriority("I")
	rcp.SetQuantityLimit(strconv.Itoa(b.site.QueryLimit) + "^RD")

	result.Message = v251.NewMessage(msh, qpd, rcp)
	return result, nil
}
