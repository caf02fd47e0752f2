package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drfirst/go-iis/internal/domain/immunization"
)

const partnersQuery = `
	SELECT ppid, COALESCE(name, ''), COALESCE(npi, ''), COALESCE(remote_host, ''),
		COALESCE(login, ''), COALESCE(password, ''), COALESCE(results_path, '')
	FROM procedure_providers
	WHERE protocol = 'SFTP' AND active = 1
	ORDER BY ppid`

const matchPatientsQuery = `
	SELECT pid, COALESCE(fname, ''), COALESCE(lname, ''), DOB,
		COALESCE(sex, ''), COALESCE(race, ''), COALESCE(ethnicity, '')
	FROM patient_data
	WHERE LOWER(lname) = LOWER(?) AND LOWER(fname) = LOWER(?) AND DOB = ?`

// Partners implements immunization.PartnerSource
func (d *DB) Partners(ctx context.Context) ([]*immunization.Partner, error) {
	rows, err := d.db.QueryContext(ctx, partnersQuery)
	if err != nil {
		return nil, fmt.Errorf("select partners: %w", err)
	}
	defer rows.Close()

	var out []*immunization.Partner
	for rows.Next() {
		var p immunization.Partner
		if err := rows.Scan(&p.ID, &p.Name, &p.NPI, &p.RemoteHost, &p.Login, &p.Password, &p.ResultsPath); err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partners: %w", err)
	}
	return out, nil
}

// FindPatients implements immunization.PartnerSource
func (d *DB) FindPatients(ctx context.Context, lastName, firstName, dob string) ([]*immunization.Patient, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.rebind(matchPatientsQuery), lastName, firstName, dob)
	if err != nil {
		return nil, fmt.Errorf("match patients: %w", err)
	}
	defer rows.Close()

	var out []*immunization.Patient
	for rows.Next() {
		var (
			p  immunization.Patient
			db sql.NullTime
		)
		if err := rows.Scan(&p.PID, &p.FirstName, &p.LastName, &db, &p.Sex, &p.Race, &p.Ethnicity); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.DOB = formatDOB(db)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}
