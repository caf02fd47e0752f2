package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drfirst/go-iis/internal/domain/immunization"
)

const (
	layoutDate      = "20060102"
	layoutTimestamp = "20060102150405"

	// AssigningAuthority suffixes patient identifiers in PID-3 and QPD-3
	AssigningAuthority = "OPENEMR"

	// AmountNotRecorded is the RXA-6 registry sentinel
	AmountNotRecorded = "999"

	defaultClinicianTitle = "MA"
)

// Fixed coded values
const (
	NotesNewRecord = "00^NEW IMMUNIZATION RECORD^NIP001"

	EthnicityHispanic    = "2135-2^Hispanic or Latino^CDCREC"
	EthnicityNotHispanic = "2186-5^Not Hispanic or Latino^CDCREC"
	EthnicityUnknown     = "PHC1175^Prefer Not to Say^CDCREC"

	RaceDefaultCode  = "PHC1175"
	RaceDefaultTitle = "Prefer Not to Say"
	RaceCodeSystem   = "HL70005"

	FundingEligibilityID    = "64994-7^Vaccine funding program eligibility category^LN"
	FundingEligibilityValue = "V01^Private Pay/Insurance^HL70064"
	FundingSourceID         = "30963-3^Vaccine Funding Source^LN"
	FundingSourceValue      = "PHC70^Private Funds^CDCPHINVS"
)

// SanitizeName replaces every character outside A-Z and a-z with a space
func SanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return ' '
	}, s)
}

// PatientName renders LAST^FIRST^^^^^L with sanitized names
func PatientName(last, first string) string {
	return SanitizeName(last) + "^" + SanitizeName(first) + "^^^^^L"
}

// SexCode maps the EHR sex value to HL70001
func SexCode(sex string) string {
	switch sex {
	case "Male":
		return "M"
	case "Female":
		return "F"
	case "Unknown":
		return "U"
	default:
		return "X"
	}
}

// EthnicityCode maps the EHR ethnicity option to a single CDCREC value
func EthnicityCode(ethnicity string) string {
	switch ethnicity {
	case "hisp_or_latin":
		return EthnicityHispanic
	case "not_hisp_or_latin":
		return EthnicityNotHispanic
	default:
		return EthnicityUnknown
	}
}

// RaceField renders PID-10, falling back to "prefer not to say" when unmapped
func RaceField(r *immunization.Race) string {
	if r == nil || r.Code == "" || r.Title == "" {
		return RaceDefaultCode + "^" + RaceDefaultTitle + "^" + RaceCodeSystem
	}
	return esc(r.Code) + "^" + esc(r.Title) + "^" + RaceCodeSystem
}

// FormatCVX zero-pads numeric CVX codes to two digits
func FormatCVX(code string) string {
	code = strings.TrimSpace(code)
	n, err := strconv.Atoi(code)
	if err != nil {
		return code
	}
	return fmt.Sprintf("%02d", n)
}

// NormalizeTitle rewrites "Dr." as MD and applies fallback when empty
func NormalizeTitle(title, fallback string) string {
	title = strings.TrimSpace(title)
	switch title {
	case "Dr.":
		return "MD"
	case "":
		return fallback
	default:
		return title
	}
}

// CompactDate strips dashes from a stored date, e.g. 2010-05-01 to 20100501
func CompactDate(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "")
}

// FormatAmount renders a dose amount without trailing zeros
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	return t.Format(layoutDate)
}
