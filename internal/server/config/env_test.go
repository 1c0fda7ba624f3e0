package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_OverridesOnlySetVariables(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "from-env")
	t.Setenv("UPSTREAM_MAX_RETRIES", "0")
	t.Setenv("UPSTREAM_RETRY_DELAY", "500ms")
	t.Setenv("FAILURE_AS_ANSWER", "true")
	t.Setenv("S3_BUCKET", "archive")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "from-env", cfg.DifyAPIKey)
	assert.Equal(t, 0, cfg.UpstreamMaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.UpstreamRetryDelay)
	assert.True(t, cfg.FailureAsAnswer)
	assert.Equal(t, "archive", cfg.S3Bucket)

	// untouched
	assert.Equal(t, "https://api.dify.ai/v1", cfg.DifyBaseURL)
	assert.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
}

func TestParseEnv_InvalidValuePanics(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "forever")

	cfg := &Config{}
	cfg.LoadDefaults()
	require.Panics(t, func() { parseEnv(cfg) })
}
