package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukahub/dukasync/internal/mode"
)

const minimalYAML = `
store_id: ST01
remote:
  kind: http
  base_url: https://api.dukahub.example
`

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "ST01", cfg.StoreID)
	assert.Equal(t, "dukasync.db", cfg.StorePath)
	assert.Equal(t, 0.16, cfg.VATRate)
	assert.Equal(t, string(mode.PreferenceAuto), cfg.Mode.Preference)
	assert.Equal(t, 30*time.Second, cfg.ModeSettings().SwitchThreshold)
	assert.Equal(t, time.Minute, cfg.ModeSettings().SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.RemoteTimeout())
}

func TestParse_FullOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
store_id: ST02
store_path: /var/lib/dukasync/outbox.db
vat_rate: 0.08
remote:
  kind: mysql
  dsn: duka:duka@tcp(192.168.0.10:3306)/duka
mode:
  preference: offline
  switch_threshold_seconds: 10
  sync_interval_ms: 30000
etims:
  exchange_dir: /mnt/usb
`))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Remote.Kind)
	assert.Equal(t, mode.PreferenceOffline, cfg.ModeSettings().Preference)
	assert.Equal(t, 30*time.Second, cfg.ModeSettings().SyncInterval)
	assert.Equal(t, "/mnt/usb", cfg.ETIMS.ExchangeDir)
	assert.Equal(t, 0.08, cfg.VATRate)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing store id", `{remote: {kind: http, base_url: "https://x"}}`},
		{"bad preference", minimalYAML + "\nmode:\n  preference: sometimes\n"},
		{"http without base url", "store_id: ST01\nremote:\n  kind: http\n"},
		{"mysql without dsn", "store_id: ST01\nremote:\n  kind: mysql\n"},
		{"unknown remote kind", "store_id: ST01\nremote:\n  kind: grpc\n"},
		{"vat rate out of range", minimalYAML + "\nvat_rate: 1.5\n"},
		{"not yaml", `:{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dukasync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ST01", cfg.StoreID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
