package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/hyperbalance/internal/flavor"
	"github.com/yourusername/hyperbalance/internal/migration"
	"github.com/yourusername/hyperbalance/internal/server"
)

type stubHost struct{ id, name string }

func (h stubHost) HostID() string   { return h.id }
func (h stubHost) Hostname() string { return h.name }

func TestEnvOrPrefersFlagValue(t *testing.T) {
	t.Setenv("HYPERBALANCE_TEST_VAR", "from-env")
	assert.Equal(t, "from-flag", envOr("from-flag", "HYPERBALANCE_TEST_VAR"))
}

func TestEnvOrFallsBackToEnv(t *testing.T) {
	t.Setenv("HYPERBALANCE_TEST_VAR", "from-env")
	assert.Equal(t, "from-env", envOr("", "HYPERBALANCE_TEST_VAR"))
}

func TestEnvOrEmptyWhenNeitherSet(t *testing.T) {
	os.Unsetenv("HYPERBALANCE_TEST_VAR_UNSET")
	assert.Empty(t, envOr("", "HYPERBALANCE_TEST_VAR_UNSET"))
}

func TestWriteMigrationsRendersOneLinePerMigration(t *testing.T) {
	s := server.Server{ID: "vm1", Name: "vm1", Flavor: flavor.New("f", "f", 1024, 1)}
	migrations := []migration.Migration{
		migration.New(s, stubHost{"a", "compute-a"}, stubHost{"b", "compute-b"}),
	}
	var buf bytes.Buffer
	writeMigrations(&buf, migrations)
	assert.Contains(t, buf.String(), "compute-b")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestWriteMigrationsEmptyProducesNoOutput(t *testing.T) {
	var buf bytes.Buffer
	writeMigrations(&buf, nil)
	assert.Empty(t, buf.String())
}
