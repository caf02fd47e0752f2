package immunization

import (
	"context"
	"encoding/json"
	"strconv"
)

// OrdersSourceTable is the ledger link source for inbound result files
const OrdersSourceTable = "procedure_orders"

// Partner is an active SFTP procedure provider delivering result files
type Partner struct {
	ID          int64
	Name        string
	NPI         string
	RemoteHost  string
	Login       string
	Password    string
	ResultsPath string
}

// LedgerName renders the partner as stored in the ledger, e.g. {"7":"Quest"}
func (p Partner) LedgerName() string {
	b, _ := json.Marshal(map[string]string{strconv.FormatInt(p.ID, 10): p.Name})
	return string(b)
}

// PartnerSource lists partners and matches patients named in result files
type PartnerSource interface {
	// Partners returns the active SFTP procedure providers
	Partners(ctx context.Context) ([]*Partner, error)
	// FindPatients matches case-insensitively on names and exactly on DOB (YYYY-MM-DD)
	FindPatients(ctx context.Context, lastName, firstName, dob string) ([]*Patient, error)
}
