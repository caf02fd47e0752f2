package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# OpenEMR interface settings
if.OpenEMR.dbhost=db.clinic.local
if.OpenEMR.dbport=3307
if.OpenEMR.dbuser=openemr
if.OpenEMR.dbuser.password=s3cret
if.OpenEMR.dbname=openemr
if.IR.user=cairuser
if.IR.password=cairpass
if.IR.facility=DE-000001
if.IR.region=CAIRLO
if.IR.orgcode=DE-000001
if.IR.wsdl=cdc-iis-2011-CATRN.wsdl
if.IR.endpoint=https://igs.cdph.ca.gov/submit
if.IR.timeout=15s
if.dir.orders.os=/var/spool/orders
if.kafka.brokers=kafka-1:9092,kafka-2:9092
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdvxu.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.clinic.local", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "CAIRLO", cfg.Registry.Region)
	assert.Equal(t, 15*time.Second, cfg.Registry.Timeout)
	assert.False(t, cfg.Registry.Insecure)
	assert.Equal(t, "/var/spool/orders", cfg.Jobs.OrdersDir)
	assert.Equal(t, 100, cfg.Jobs.Limit)
	assert.Equal(t, 4, cfg.Jobs.ResultsWorkers)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.NoError(t, cfg.RequireResults())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("IF_OPENEMR_DBHOST", "replica.clinic.local")
	t.Setenv("IF_VXU_LIMIT", "25")
	t.Setenv("IF_IR_INSECURE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "replica.clinic.local", cfg.Database.Host)
	assert.Equal(t, 25, cfg.Jobs.Limit)
	assert.True(t, cfg.Registry.Insecure)
}

func TestLoadReportsEveryMissingKey(t *testing.T) {
	body := strings.Replace(sample, "if.IR.user=cairuser\n", "", 1)
	body = strings.Replace(body, "if.OpenEMR.dbname=openemr\n", "", 1)

	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "if.ir.user failed required")
	assert.Contains(t, err.Error(), "if.openemr.dbname failed required")
}

func TestLoadRejectsBadValues(t *testing.T) {
	body := sample + "if.OpenEMR.dbdriver=sqlite\nif.log.level=loud\n"

	_, err := Load(writeConfig(t, body))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "if.openemr.dbdriver failed oneof")
	assert.Contains(t, err.Error(), "if.log.level failed oneof")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/iis/mdvxu.env")
	assert.Equal(t, "/etc/iis/mdvxu.env", DefaultPath())
}

func TestRequireResults(t *testing.T) {
	cfg, err := Load(writeConfig(t, strings.Replace(sample, "if.dir.orders.os=/var/spool/orders\n", "", 1)))
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.RequireResults(), ErrInvalid)
	assert.Equal(t, "IF_DIR_ORDERS_OS", EnvName("if.dir.orders.os"))
}
