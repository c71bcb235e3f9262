package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk-io/shopdesk/pkg/ml"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), []byte(content), 0o600))
	return dir
}

func TestInitializeDefaultsWithoutFile(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.Queue.RedisAddr)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, time.Minute, cfg.Queue.MailPollInterval)
	assert.Equal(t, "shopdesk-attachments", cfg.Storage.Bucket)
	assert.Equal(t, ml.ModeStub, cfg.ML.Mode)
	assert.True(t, cfg.HelpDesk.Sandbox)
	assert.True(t, cfg.Commerce.Shopify.Sandbox)
	assert.True(t, cfg.Commerce.Stripe.Sandbox)
	assert.False(t, cfg.Mail.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.ClassifyDelay)
	assert.Equal(t, 25*time.Second, cfg.Pipeline.CreateTicketDelay)
}

func TestInitializeMergesPartialQueueSection(t *testing.T) {
	dir := writeConfig(t, `
queue:
  worker_count: 8
  redis_addr: "redis.internal:6379"
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Queue.WorkerCount)
	assert.Equal(t, "redis.internal:6379", cfg.Queue.RedisAddr)
	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Queue.RetryBackoff)
	assert.Equal(t, 24*time.Hour, cfg.Queue.DedupTTL)
}

func TestInitializeExpandsEnvTemplates(t *testing.T) {
	t.Setenv("TEST_ZENDESK_TOKEN", "tok-123")
	dir := writeConfig(t, `
helpdesk:
  sandbox: false
  subdomain: acme
  email: support@acme.example
  api_token: "{{.TEST_ZENDESK_TOKEN}}"
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.False(t, cfg.HelpDesk.Sandbox)
	assert.Equal(t, "tok-123", cfg.HelpDesk.APIToken)
}

func TestInitializeSandboxFalseOverridesDefault(t *testing.T) {
	dir := writeConfig(t, `
commerce:
  shopify:
    sandbox: false
    domain: acme.myshopify.com
    api_key: key
    password: pw
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.False(t, cfg.Commerce.Shopify.Sandbox)
	assert.Equal(t, "acme.myshopify.com", cfg.Commerce.Shopify.Domain)
	// The stripe section was absent and keeps its sandbox default.
	assert.True(t, cfg.Commerce.Stripe.Sandbox)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "queue: [not: a: map")
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeRejectsUnknownMLMode(t *testing.T) {
	dir := writeConfig(t, `
ml:
  mode: quantum
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestInitializeRequiresBaseURLForHTTPMode(t *testing.T) {
	dir := writeConfig(t, `
ml:
  mode: http
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestInitializeRejectsPartialHelpDeskCredentials(t *testing.T) {
	dir := writeConfig(t, `
helpdesk:
  sandbox: false
  subdomain: acme
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestExpandEnvLeavesDollarSignsAlone(t *testing.T) {
	data := ExpandEnv([]byte(`pattern: "^secret.*$"`))
	assert.Equal(t, `pattern: "^secret.*$"`, string(data))
}

func TestExpandEnvMissingVariableIsEmpty(t *testing.T) {
	data := ExpandEnv([]byte(`token: "{{.DEFINITELY_NOT_SET_ANYWHERE}}"`))
	assert.Equal(t, `token: ""`, string(data))
}
