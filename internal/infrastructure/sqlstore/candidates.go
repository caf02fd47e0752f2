package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/domain/immunization"
)

// ErrPatientNotFound is returned when a pid has no patient_data row
var ErrPatientNotFound = errors.New("patient not found")

// candidateQuery selects administered immunizations that have no VXU ledger row.
// The ledger anti-join is what makes repeated runs skip logged records.
const candidateQuery = `
	SELECT imm.id, imm.patient_id, imm.cvx_code, imm.administered_date,
		COALESCE(imm.amount_administered, 0), COALESCE(du.title, ''),
		imm.lot_number, imm.expiration_date, imm.manufacturer, mxu.code,
		COALESCE(md.npi, ''), COALESCE(md.fname, ''), COALESCE(md.lname, ''), COALESCE(md.title, ''),
		COALESCE(cl.fname, ''), COALESCE(cl.lname, ''), COALESCE(cl.title, ''),
		pt.pid, pt.fname, pt.lname, pt.DOB, COALESCE(pt.sex, ''), COALESCE(pt.race, ''), COALESCE(pt.ethnicity, '')
	FROM immunizations imm
	INNER JOIN (
		SELECT cd.code, cd.code_text AS manufacturer FROM codes cd
		INNER JOIN code_types ct ON ct.ct_id = cd.code_type
		WHERE ct.ct_key = 'MXU') mxu ON mxu.manufacturer = imm.manufacturer
	INNER JOIN (
		SELECT DISTINCT lot_number FROM drug_inventory) lots ON lots.lot_number = imm.lot_number
	INNER JOIN patient_data pt ON pt.pid = imm.patient_id
	LEFT JOIN hl7log IR ON IR.msg_type = 'VXU' AND IR.link_source = 'immunizations' AND %s = IR.link_key
	LEFT JOIN users md ON md.id = COALESCE(imm.ordering_provider, pt.providerID)
	LEFT JOIN users cl ON cl.id = COALESCE(imm.administered_by_id, pt.providerID)
	LEFT JOIN list_options du ON du.list_id = 'drug_units' AND du.option_id = imm.amount_administered_unit
	WHERE IR.link_key IS NULL
	AND LENGTH(imm.cvx_code) > 1
	AND TRIM(COALESCE(imm.lot_number, '')) <> ''
	AND TRIM(COALESCE(pt.fname, '')) <> ''
	AND TRIM(COALESCE(pt.lname, '')) <> ''
	AND pt.DOB IS NOT NULL
	ORDER BY imm.administered_date DESC
	LIMIT ?`

const patientQuery = `
	SELECT pid, COALESCE(fname, ''), COALESCE(lname, ''), DOB,
		COALESCE(sex, ''), COALESCE(race, ''), COALESCE(ethnicity, '')
	FROM patient_data WHERE pid = ?`

const raceQuery = `SELECT COALESCE(title, ''), COALESCE(notes, '') FROM list_options WHERE list_id = 'race' AND option_id = ?`

// SelectPending implements immunization.Source
func (d *DB) SelectPending(ctx context.Context, limit int) ([]*immunization.Candidate, error) {
	query := d.dialect.rebind(fmt.Sprintf(candidateQuery, d.dialect.keyText("imm.id")))
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	var out []*immunization.Candidate
	for rows.Next() {
		var (
			c          immunization.Candidate
			expiration sql.NullTime
			dob        sql.NullTime
		)
		err := rows.Scan(
			&c.ID, &c.PatientID, &c.CVXCode, &c.AdministeredDate,
			&c.AmountAdministered, &c.DoseUnits,
			&c.LotNumber, &expiration, &c.Manufacturer, &c.MVXCode,
			&c.OrderingProvider.NPI, &c.OrderingProvider.FirstName, &c.OrderingProvider.LastName, &c.OrderingProvider.Title,
			&c.Administrator.FirstName, &c.Administrator.LastName, &c.Administrator.Title,
			&c.Patient.PID, &c.Patient.FirstName, &c.Patient.LastName, &dob,
			&c.Patient.Sex, &c.Patient.Race, &c.Patient.Ethnicity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if expiration.Valid {
			t := expiration.Time
			c.ExpirationDate = &t
		}
		c.Patient.DOB = formatDOB(dob)
		c.LotNumber = strings.TrimSpace(c.LotNumber)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	d.logger.Debug("selected pending immunizations", zap.Int("count", len(out)))
	return out, nil
}

// Patient implements immunization.Source
func (d *DB) Patient(ctx context.Context, pid int64) (*immunization.Patient, error) {
	var (
		p   immunization.Patient
		dob sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, d.dialect.rebind(patientQuery), pid).Scan(
		&p.PID, &p.FirstName, &p.LastName, &dob, &p.Sex, &p.Race, &p.Ethnicity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrPatientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load patient %d: %w", pid, err)
	}
	p.DOB = formatDOB(dob)
	return &p, nil
}

// Race implements immunization.Source. Lookups are cached for the life of the DB handle.
func (d *DB) Race(ctx context.Context, optionID string) (*immunization.Race, error) {
	if optionID == "" {
		return nil, nil
	}
	if r, ok := d.races.get(optionID); ok {
		return r, nil
	}

	var r immunization.Race
	err := d.db.QueryRowContext(ctx, d.dialect.rebind(raceQuery), optionID).Scan(&r.Title, &r.Code)
	if errors.Is(err, sql.ErrNoRows) {
		d.races.set(optionID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("race %q: %w", optionID, err)
	}
	d.races.set(optionID, &r)
	return &r, nil
}

func formatDOB(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(time.DateOnly)
}

// raceCache memoizes race option lookups, including misses
type raceCache struct {
	cache *ristretto.Cache
}

func newRaceCache() (*raceCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1000,
		MaxCost:            100,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("race cache: %w", err)
	}
	return &raceCache{cache: cache}, nil
}

func (c *raceCache) get(optionID string) (*immunization.Race, bool) {
	v, ok := c.cache.Get(optionID)
	if !ok {
		return nil, false
	}
	r, _ := v.(*immunization.Race)
	return r, true
}

func (c *raceCache) set(optionID string, r *immunization.Race) {
	c.cache.Set(optionID, r, 1)
	c.cache.Wait()
}

func (c *raceCache) close() {
	c.cache.Close()
}
