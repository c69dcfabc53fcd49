package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "switch.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":9090"
connectors:
  hmacpay:
    base_url: "https://api.hmacpay.test"
    sandbox: true
  formpay:
    base_url: "https://api.formpay.test"
rollout:
  fractions:
    "merchant_1:hmacpay:card:authorize": "0.25"
  guards:
    - name: no_test_mode
      expression: "test_mode == false"
unified:
  target: "localhost:7000"
tracker:
  postgres_dsn: "postgres://switch@localhost/switch?sslmode=disable"
events:
  brokers: ["localhost:9092"]
  topic: "payment-outcomes"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.Contains(t, cfg.Connectors, "hmacpay")
	assert.True(t, cfg.Connectors["hmacpay"].Sandbox)
	assert.Equal(t, "0.25", cfg.Rollout.Fractions["merchant_1:hmacpay:card:authorize"])
	require.Len(t, cfg.Rollout.Guards, 1)
	assert.Equal(t, "no_test_mode", cfg.Rollout.Guards[0].Name)
	assert.Equal(t, "localhost:7000", cfg.Unified.Target)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Brokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("missing connectors", func(t *testing.T) {
		dir := writeConfig(t, `
server:
  addr: ":9090"
`)
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("connector without base url", func(t *testing.T) {
		dir := writeConfig(t, `
connectors:
  hmacpay:
    sandbox: true
`)
		_, err := Load(dir)
		assert.Error(t, err)
	})
}
