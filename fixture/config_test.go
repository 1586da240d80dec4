package fixture_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/certforge/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, "out: /tmp/fixtures\nvalidity-days: 30\ndeterministic: true\n")

	cfg, err := fixture.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fixtures", cfg.Out)
	assert.Equal(t, 30, cfg.ValidityDays)
	assert.True(t, cfg.Deterministic)
	// Untouched fields keep their defaults.
	assert.Equal(t, fixture.DefaultConfig().OCSPURL, cfg.OCSPURL)
}

func TestLoadConfig_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "out: x\nvalidty-days: 30\n")
	_, err := fixture.LoadConfig(path)
	assert.Error(t, err, "typoed keys must fail loudly")
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "validity-days: -1\n")
	_, err := fixture.LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := fixture.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Out = ""
	assert.Error(t, cfg.Validate())
}
