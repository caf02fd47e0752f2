package sqlstore

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Supported drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// dialect isolates the few statements that differ between MySQL and Postgres
type dialect interface {
	name() string
	// rebind rewrites ? placeholders for the driver
	rebind(query string) string
	// keyText renders an integer column comparable to the varchar link_key
	keyText(col string) string
	insertLedger() string
	tryLock() string
	unlock() string
	lockArg(name string) any
}

type mysqlDialect struct{}

func (mysqlDialect) name() string { return DriverMySQL }
func (mysqlDialect) rebind(query string) string { return query }
func (mysqlDialect) keyText(col string) string { return col }

func (mysqlDialect) insertLedger() string {
	return `INSERT INTO hl7log
		(msg_type, msg_partner, link_source, link_key, msg_body, msg_response, msg_result, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`
}

func (mysqlDialect) tryLock() string { return `SELECT GET_LOCK(?, 0)` }
func (mysqlDialect) unlock() string { return `SELECT RELEASE_LOCK(?)` }
func (mysqlDialect) lockArg(n string) any { return n }

type postgresDialect struct{}

func (postgresDialect) name() string { return DriverPostgres }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) keyText(col string) string { return "CAST(" + col + " AS TEXT)" }

func (postgresDialect) insertLedger() string {
	return `INSERT INTO hl7log
		(msg_type, msg_partner, link_source, link_key, msg_body, msg_response, msg_result, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING id, created_at`
}

func (postgresDialect) tryLock() string { return `SELECT pg_try_advisory_lock(?)` }
func (postgresDialect) unlock() string { return `SELECT pg_advisory_unlock(?)` }

// lockArg hashes the lock name into the bigint key space
func (postgresDialect) lockArg(n string) any {
	h := fnv.New64a()
	h.Write([]byte(n))
	return int64(h.Sum64())
}

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case DriverMySQL, "":
		return mysqlDialect{}, true
	case DriverPostgres:
		return postgresDialect{}, true
	default:
		return nil, false
	}
}
