// Package immunization defines the EHR records exported to the registry.
package immunization

import (
	"context"
	"time"
)

// SourceTable is the ledger link source for immunization records
const SourceTable = "immunizations"

// Provider is a clinician referenced by an immunization
type Provider struct {
	NPI       string
	FirstName string
	LastName  string
	Title     string
}

// Complete reports whether every ORC-12 component is present
func (p Provider) Complete() bool {
	return p.NPI != "" && p.FirstName != "" && p.LastName != "" && p.Title != ""
}

// Patient holds the demographics sent in PID
type Patient struct {
	PID       int64
	FirstName string
	LastName  string
	// DOB is kept as stored, typically YYYY-MM-DD
	DOB       string
	Sex       string
	Race      string
	Ethnicity string
}

// Race is a race list option mapped to a registry code
type Race struct {
	Code  string
	Title string
}

// Candidate is an administered immunization eligible for transmission
type Candidate struct {
	ID                 int64
	PatientID          int64
	CVXCode            string
	AdministeredDate   time.Time
	AmountAdministered float64
	DoseUnits          string
	LotNumber          string
	ExpirationDate     *time.Time
	Manufacturer       string
	MVXCode            string

	OrderingProvider Provider
	Administrator    Provider

	Patient Patient
	// Race is resolved from the patient's race option, nil when unmapped
	Race *Race
}

// Source selects candidates and looks up the data the builder needs
type Source interface {
	// SelectPending returns up to limit immunizations with no VXU ledger row,
	// newest administration first
	SelectPending(ctx context.Context, limit int) ([]*Candidate, error)
	// Patient loads a single patient by pid
	Patient(ctx context.Context, pid int64) (*Patient, error)
	// Race resolves a race option id, returning nil when unmapped
	Race(ctx context.Context, optionID string) (*Race, error)
}
