package mapper

import (
	"strconv"
	"strings"
	"time"

	"github.com/drfirst/go-iis/internal/domain/immunization"
	"github.com/drfirst/go-iis/internal/hl7v2/v251"
)

// BuildVXU maps an immunization candidate to a VXU^V04 message.
// A candidate without a CVX code or administration date yields no message.
func (b *Builder) BuildVXU(c *immunization.Candidate) (*Result, error) {
	if c == nil {
		return nil, &MapError{Field: "candidate", Code: CodeNullInput, Message: "candidate is nil"}
	}
	if strings.TrimSpace(c.CVXCode) == "" {
		return nil, &MapError{Field: "RXA-5", Code: CodeIncomplete, Message: "missing CVX code"}
	}
	if c.AdministeredDate.IsZero() {
		return nil, &MapError{Field: "RXA-3", Code: CodeIncomplete, Message: "missing administration date"}
	}

	now := b.now()
	id := strconv.FormatInt(c.ID, 10)
	result := &Result{
		ControlID: now.Format(layoutTimestamp) + strings.TrimSpace(c.CVXCode) + id,
	}

	msh := b.header(now, MessageTypeVXU, result.ControlID)
	pid := patientSegment(&c.Patient, c.Race)
	pd1 := registrySegment(now)
	orc := b.orderSegment(c, result)
	rxa := b.administrationSegment(c)

	administered := formatDate(c.AdministeredDate)
	result.Message = v251.NewMessage(
		msh, pid, pd1, orc, rxa,
		fundingSegment("1", FundingEligibilityID, FundingEligibilityValue, administered),
		fundingSegment("2", FundingSourceID, FundingSourceValue, administered),
	)
	return result, nil
}

func patientSegment(p *immunization.Patient, race *immunization.Race) *v251.PID {
	seg := v251.NewPID()
	seg.SetIdentifierList(patientIdentifier(p.PID))
	seg.SetPatientName(PatientName(p.LastName, p.FirstName))
	seg.SetDateOfBirth(CompactDate(p.DOB))
	seg.SetSex(SexCode(p.Sex))
	seg.SetRace(RaceField(race))
	seg.SetEthnicGroup(EthnicityCode(p.Ethnicity))
	return seg
}

func patientIdentifier(pid int64) string {
	return strconv.FormatInt(pid, 10) + "^^^" + AssigningAuthority + "^MR"
}

// registrySegment marks the patient active with publicity consent as of yesterday
func registrySegment(now time.Time) *v251.PD1 {
	yesterday := formatDate(now.AddDate(0, 0, -1))
	seg := v251.NewPD1()
	seg.SetProtectionIndicator("Y")
	seg.SetProtectionIndicatorDate(yesterday)
	seg.SetRegistryStatus("A")
	seg.SetRegistryStatusDate(yesterday)
	return seg
}

func (b *Builder) orderSegment(c *immunization.Candidate, result *Result) *v251.ORC {
	seg := v251.NewORC()
	seg.SetOrderControl("RE")
	seg.SetFillerOrderNumber(strconv.FormatInt(c.ID, 10))

	md := c.OrderingProvider
	md.Title = NormalizeTitle(md.Title, "")
	if !md.Complete() {
		result.warn("immunization %d: ordering provider incomplete, sending blank ORC-12", c.ID)
		return seg
	}
	seg.SetOrderingProvider(esc(md.NPI) + "^" + esc(md.LastName) + "^" + esc(md.FirstName) +
		"^^^^^^NPPES^L^^^NPI^^^^^^^^" + esc(md.Title))
	return seg
}

func (b *Builder) administrationSegment(c *immunization.Candidate) *v251.RXA {
	seg := v251.NewRXA()
	seg.SetGiveSubIDCounter("0")
	seg.SetAdministrationSubIDCounter("1")
	seg.SetStartAdministration(formatDate(c.AdministeredDate))
	seg.SetAdministeredCode(esc(FormatCVX(c.CVXCode)) + "^^CVX")

	if c.AmountAdministered > 0 {
		seg.SetAdministeredAmount(FormatAmount(c.AmountAdministered))
		seg.SetAdministeredUnits(esc(c.DoseUnits))
	} else {
		seg.SetAdministeredAmount(AmountNotRecorded)
	}

	seg.SetAdministrationNotes(NotesNewRecord)

	cl := c.Administrator
	seg.SetAdministeringProvider("^" + esc(cl.LastName) + "^" + esc(cl.FirstName) +
		"^^^^^^^^^^^^^^^^^^" + esc(NormalizeTitle(cl.Title, defaultClinicianTitle)))
	seg.SetAdministeredAtLocation("^^^" + b.site.OrgCode)

	if lot := strings.TrimSpace(c.LotNumber); lot != "" {
		seg.SetLotNumber(esc(lot))
	}
	if c.ExpirationDate != nil && !c.ExpirationDate.IsZero() {
		seg.SetExpirationDate(formatDate(*c.ExpirationDate))
	}
	if c.Manufacturer != "" {
		seg.SetManufacturer(esc(c.MVXCode) + "^" + esc(c.Manufacturer) + "^MVX")
	}

	seg.SetCompletionStatus("CP")
	seg.SetActionCode("A")
	return seg
}

// esc escapes a stored value for use as one component
func esc(s string) string {
	return v251.Escape(s)
}

func fundingSegment(seq, identifier, value, observed string) *v251.OBX {
	seg := v251.NewOBX()
	seg.SetSequenceID(seq)
	seg.SetValueType("CE")
	seg.SetObservationIdentifier(identifier)
	seg.SetObservationSubID("1")
	seg.SetObservationValue(value)
	seg.SetResultStatus("F")
	seg.SetObservationTime(observed)
	return seg
}
