package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":              "www.example:8080",
		"endpoint_addr_grpc":              "www.example:9000",
		"database_dsn":                    "postgres://x",
		"secret_key":                      "my_secret_key",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": "3m",
		"dify_base_url":                   "http://dify.local/v1",
		"dify_api_key":                    "app-123",
		"upstream_timeout":                "10s",
		"upstream_max_retries":            0,
		"upstream_retry_delay":            "250ms",
		"upstream_insecure_skip_verify":   true,
		"failure_as_answer":               true,
		"upload_dir":                      "/tmp/up",
		"max_upload_size":                 1024,
		"s3_bucket":                       "bucket",
		"redis_addr":                      "redis:6379",
		"stats_cache_ttl":                 "1m",
		"log_format":                      "text",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:8080", cfg.EndpointAddrHTTP)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, "http://dify.local/v1", cfg.DifyBaseURL)
		assert.Equal(t, "app-123", cfg.DifyAPIKey)
		assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
		assert.Equal(t, 0, cfg.UpstreamMaxRetries, "explicit zero must override the default")
		assert.Equal(t, 250*time.Millisecond, cfg.UpstreamRetryDelay)
		assert.True(t, cfg.UpstreamInsecureSkipVerify)
		assert.True(t, cfg.FailureAsAnswer)
		assert.Equal(t, "/tmp/up", cfg.UploadDir)
		assert.Equal(t, int64(1024), cfg.MaxUploadSize)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.Equal(t, time.Minute, cfg.StatsCacheTTL)
		assert.Equal(t, "text", cfg.LogFormat)

		// keys absent from the file keep their defaults
		assert.Equal(t, "us-east-1", cfg.S3Region)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		cfg.LoadDefaults()
		want := *cfg
		parseJson(cfg)

		assert.Equal(t, want, *cfg)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
