package mapper

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-iis/internal/domain/immunization"
	"github.com/drfirst/go-iis/internal/hl7v2/v251"
)

var fixedNow = time.Date(2025, 3, 4, 15, 6, 7, 0, time.UTC)

func testBuilder() *Builder {
	return NewBuilder(SiteConfig{
		Facility: "DE-000001",
		Region:   "CAIRLO",
		OrgCode:  "DE-000001",
	}).WithClock(func() time.Time { return fixedNow })
}

func janeDoe() *immunization.Candidate {
	exp := time.Date(2011, 1, 31, 0, 0, 0, 0, time.UTC)
	return &immunization.Candidate{
		ID:               42,
		PatientID:        7,
		CVXCode:          "8",
		AdministeredDate: time.Date(2010, 5, 1, 9, 30, 0, 0, time.UTC),
		LotNumber:        "XYZ1",
		ExpirationDate:   &exp,
		Manufacturer:     "Merck and Co., Inc.",
		MVXCode:          "MSD",
		OrderingProvider: immunization.Provider{NPI: "1234567890", FirstName: "Greg", LastName: "House", Title: "Dr."},
		Administrator:    immunization.Provider{FirstName: "Mary", LastName: "Smith"},
		Patient: immunization.Patient{
			PID:       7,
			FirstName: "Jane",
			LastName:  "Doe",
			DOB:       "2010-05-01",
			Sex:       "Female",
			Ethnicity: "not_hisp_or_latin",
		},
		Race: &immunization.Race{Code: "2106-3", Title: "White"},
	}
}

func segment[T v251.Segmenter](t *testing.T, m *v251.Message, tag string) T {
	t.Helper()
	s := m.First(tag)
	require.NotNil(t, s, "missing %s segment", tag)
	typed, ok := v251.Typed(s).(T)
	require.True(t, ok, "unexpected variant for %s", tag)
	return typed
}

func TestBuildVXUJaneDoe(t *testing.T) {
	res, err := testBuilder().BuildVXU(janeDoe())
	require.NoError(t, err)
	require.NotNil(t, res.Message)

	tags := make([]string, 0, res.Message.Len())
	for _, s := range res.Message.Segments() {
		tags = append(tags, s.Tag())
	}
	assert.Equal(t, []string{"MSH", "PID", "PD1", "ORC", "RXA", "OBX", "OBX"}, tags)

	msh := res.Message.Header()
	require.NotNil(t, msh)
	assert.Equal(t, "OPENEMR", msh.SendingApplication())
	assert.Equal(t, "DE-000001", msh.SendingFacility())
	assert.Equal(t, "CAIRLO", msh.ReceivingFacility())
	assert.Equal(t, "20250304150607+0000", msh.DateTime())
	assert.Equal(t, MessageTypeVXU, msh.MessageType())
	assert.Equal(t, "20250304150607842", msh.ControlID())
	assert.Equal(t, res.ControlID, msh.ControlID())
	assert.Equal(t, "P", msh.ProcessingID())
	assert.Equal(t, "2.5.1", msh.VersionID())
	assert.Equal(t, "ER", msh.AcceptAckType())
	assert.Equal(t, "AL", msh.ApplicationAckType())

	pid := segment[*v251.PID](t, res.Message, v251.TagPID)
	assert.Equal(t, "7^^^OPENEMR^MR", pid.IdentifierList())
	assert.Equal(t, "Doe^Jane^^^^^L", pid.PatientName())
	assert.Equal(t, "20100501", pid.DateOfBirth())
	assert.Equal(t, "F", pid.Sex())
	assert.Equal(t, "2106-3^White^HL70005", pid.Race())
	assert.Equal(t, EthnicityNotHispanic, pid.EthnicGroup())

	pd1 := segment[*v251.PD1](t, res.Message, v251.TagPD1)
	assert.Equal(t, "Y", pd1.ProtectionIndicator())
	assert.Equal(t, "20250303", pd1.ProtectionIndicatorDate())
	assert.Equal(t, "A", pd1.RegistryStatus())
	assert.Equal(t, "20250303", pd1.RegistryStatusDate())

	orc := segment[*v251.ORC](t, res.Message, v251.TagORC)
	assert.Equal(t, "RE", orc.OrderControl())
	assert.Equal(t, "42", orc.FillerOrderNumber())
	assert.Equal(t, "1234567890^House^Greg^^^^^^NPPES^L^^^NPI^^^^^^^^MD", orc.OrderingProvider())

	rxa := segment[*v251.RXA](t, res.Message, v251.TagRXA)
	assert.Equal(t, "0", rxa.GiveSubIDCounter())
	assert.Equal(t, "1", rxa.AdministrationSubIDCounter())
	assert.Equal(t, "20100501", rxa.StartAdministration())
	assert.Equal(t, "08^^CVX", rxa.AdministeredCode())
	assert.Equal(t, "999", rxa.AdministeredAmount())
	assert.Empty(t, rxa.AdministeredUnits())
	assert.Equal(t, NotesNewRecord, rxa.AdministrationNotes())
	assert.Equal(t, "^Smith^Mary^^^^^^^^^^^^^^^^^^MA", rxa.AdministeringProvider())
	assert.Equal(t, "^^^DE-000001", rxa.AdministeredAtLocation())
	assert.Equal(t, "XYZ1", rxa.LotNumber())
	assert.Equal(t, "20110131", rxa.ExpirationDate())
	assert.Equal(t, "MSD^Merck and Co., Inc.^MVX", rxa.Manufacturer())
	assert.Equal(t, "CP", rxa.CompletionStatus())
	assert.Equal(t, "A", rxa.ActionCode())

	assert.Empty(t, res.Warnings)
}

func TestBuildVXUFundingObservations(t *testing.T) {
	res, err := testBuilder().BuildVXU(janeDoe())
	require.NoError(t, err)

	encoded := v251.Encode(res.Message)
	assert.Contains(t, encoded, "OBX|1|CE|64994-7^Vaccine funding program eligibility category^LN|1|V01^Private Pay/Insurance^HL70064||||||F|||20100501\r")
	assert.Contains(t, encoded, "OBX|2|CE|30963-3^Vaccine Funding Source^LN|1|PHC70^Private Funds^CDCPHINVS||||||F|||20100501\r")
}

func TestBuildVXUEscapesStoredValues(t *testing.T) {
	c := janeDoe()
	c.LotNumber = "XYZ|1"
	c.Manufacturer = "Merck^Co~A&B"
	c.Administrator.LastName = "Smith^Jr"
	c.OrderingProvider.LastName = "House|MD"
	c.Race = &immunization.Race{Code: "2106-3", Title: "White^European"}

	res, err := testBuilder().BuildVXU(c)
	require.NoError(t, err)

	decoded, err := v251.Decode(v251.Encode(res.Message))
	require.NoError(t, err)

	rxa := segment[*v251.RXA](t, decoded, v251.TagRXA)
	assert.Equal(t, "XYZ|1", rxa.Text(15))
	assert.Equal(t, "20110131", rxa.ExpirationDate())
	assert.Len(t, rxa.Components(17), 3)
	assert.Equal(t, "Merck^Co~A&B", v251.Unescape(rxa.Component(17, 2)))
	assert.Equal(t, "Smith^Jr", v251.Unescape(rxa.Component(10, 2)))
	assert.Equal(t, "Mary", rxa.Component(10, 3))
	assert.Equal(t, "CP", rxa.CompletionStatus())
	assert.Equal(t, "A", rxa.ActionCode())

	orc := segment[*v251.ORC](t, decoded, v251.TagORC)
	assert.Equal(t, "House|MD", v251.Unescape(orc.Component(12, 2)))
	assert.Equal(t, "Greg", orc.Component(12, 3))

	pid := segment[*v251.PID](t, decoded, v251.TagPID)
	assert.Equal(t, "White^European", v251.Unescape(pid.Component(10, 2)))
	assert.Equal(t, RaceCodeSystem, pid.Component(10, 3))
}

func TestBuildVXUAmount(t *testing.T) {
	c := janeDoe()
	c.AmountAdministered = 5
	c.DoseUnits = "mL"

	res, err := testBuilder().BuildVXU(c)
	require.NoError(t, err)

	rxa := segment[*v251.RXA](t, res.Message, v251.TagRXA)
	assert.Equal(t, "5", rxa.AdministeredAmount())
	assert.Equal(t, "mL", rxa.AdministeredUnits())

	c.AmountAdministered = 0.5
	res, err = testBuilder().BuildVXU(c)
	require.NoError(t, err)
	rxa = segment[*v251.RXA](t, res.Message, v251.TagRXA)
	assert.Equal(t, "0.5", rxa.AdministeredAmount())
}

func TestBuildVXUMissingProviderWarns(t *testing.T) {
	c := janeDoe()
	c.OrderingProvider.NPI = ""

	res, err := testBuilder().BuildVXU(c)
	require.NoError(t, err)

	orc := segment[*v251.ORC](t, res.Message, v251.TagORC)
	assert.Empty(t, orc.OrderingProvider())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ORC-12")
}

func TestBuildVXUIncompleteCandidate(t *testing.T) {
	tests := map[string]func(c *immunization.Candidate){
		"missing cvx":  func(c *immunization.Candidate) { c.CVXCode = " " },
		"missing date": func(c *immunization.Candidate) { c.AdministeredDate = time.Time{} },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := janeDoe()
			mutate(c)

			res, err := testBuilder().BuildVXU(c)
			assert.Nil(t, res)

			var mapErr *MapError
			require.True(t, errors.As(err, &mapErr))
			assert.Equal(t, CodeIncomplete, mapErr.Code)
		})
	}

	_, err := testBuilder().BuildVXU(nil)
	var mapErr *MapError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, CodeNullInput, mapErr.Code)
}

func TestBuildVXUDefaultRace(t *testing.T) {
	for name, race := range map[string]*immunization.Race{
		"none":     nil,
		"no code":  {Title: "White"},
		"no title": {Code: "2106-3"},
	} {
		t.Run(name, func(t *testing.T) {
			c := janeDoe()
			c.Race = race

			res, err := testBuilder().BuildVXU(c)
			require.NoError(t, err)
			pid := segment[*v251.PID](t, res.Message, v251.TagPID)
			assert.Equal(t, "PHC1175^Prefer Not to Say^HL70005", pid.Race())
		})
	}
}

func TestBuildVXURoundTrip(t *testing.T) {
	c := janeDoe()
	c.Patient.LastName = "O'Brien-3"
	c.AmountAdministered = 0.5
	c.DoseUnits = "mL"

	res, err := testBuilder().BuildVXU(c)
	require.NoError(t, err)

	decoded, err := v251.Decode(v251.Encode(res.Message))
	require.NoError(t, err)
	require.Equal(t, res.Message.Len(), decoded.Len())

	for i, want := range res.Message.Segments() {
		got := decoded.Segments()[i]
		assert.Equal(t, want.Tag(), got.Tag())
		n := max(want.Len(), got.Len())
		for f := 1; f < n; f++ {
			assert.Equal(t, want.Field(f), got.Field(f), "%s-%d", want.Tag(), f)
		}
	}

	assert.Equal(t, v251.Encode(res.Message), v251.Encode(decoded))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"O'Brien-3", "O Brien  "},
		{"Doe", "Doe"},
		{"José", "Jos "},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEthnicityExclusive(t *testing.T) {
	values := []string{"hisp_or_latin", "not_hisp_or_latin", "declne_to_specfy", ""}
	for _, v := range values {
		code := EthnicityCode(v)
		if strings.Contains(code, "~") {
			t.Errorf("ethnicity %q produced repetitions: %q", v, code)
		}
		if n := strings.Count(code, "CDCREC"); n != 1 {
			t.Errorf("ethnicity %q produced %d values", v, n)
		}
	}
	if EthnicityCode("hisp_or_latin") != EthnicityHispanic {
		t.Error("expected Hispanic code")
	}
	if EthnicityCode("other") != EthnicityUnknown {
		t.Error("expected unknown fallback")
	}
}

func TestNormalizers(t *testing.T) {
	cases := []struct {
		name, got, want string
	}{
		{"cvx single digit", FormatCVX("8"), "08"},
		{"cvx two digit", FormatCVX("141"), "141"},
		{"cvx non numeric", FormatCVX("ABC"), "ABC"},
		{"title doctor", NormalizeTitle("Dr.", "MA"), "MD"},
		{"title empty", NormalizeTitle(" ", "MA"), "MA"},
		{"title other", NormalizeTitle("RN", "MA"), "RN"},
		{"sex male", SexCode("Male"), "M"},
		{"sex unknown", SexCode("Unknown"), "U"},
		{"sex other", SexCode(""), "X"},
		{"date", CompactDate("2010-05-01"), "20100501"},
		{"amount", FormatAmount(5), "5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}
}

func TestBuildQBP(t *testing.T) {
	patient := &janeDoe().Patient

	tests := []struct {
		intent    Intent
		queryName string
		profile   string
	}{
		{IntentHistory, QueryHistory, ProfileHistory},
		{IntentForecast, QueryForecast, ProfileForecast},
	}

	for _, tt := range tests {
		t.Run(tt.intent.String(), func(t *testing.T) {
			res, err := testBuilder().BuildQBP(patient, tt.intent)
			require.NoError(t, err)

			msh := res.Message.Header()
			require.NotNil(t, msh)
			assert.Equal(t, MessageTypeQBP, msh.MessageType())
			assert.Equal(t, "20250304150607QBP7", msh.ControlID())
			assert.Equal(t, tt.profile, msh.ProfileID())

			qpd := segment[*v251.QPD](t, res.Message, v251.TagQPD)
			assert.Equal(t, tt.queryName, qpd.MessageQueryName())
			assert.Equal(t, res.ControlID, qpd.QueryTag())
			assert.Equal(t, "7^^^OPENEMR^MR", qpd.PatientIdentifier())
			assert.Equal(t, "Doe^Jane^^^^^L", qpd.PatientName())
			assert.Equal(t, "20100501", qpd.DateOfBirth())
			assert.Equal(t, "F", qpd.Sex())

			assert.Contains(t, v251.Encode(res.Message), "\rRCP|I|50^RD\r")
		})
	}

	_, err := testBuilder().BuildQBP(patient, IntentVXU)
	var mapErr *MapError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, CodeBadIntent, mapErr.Code)
}
