package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/difychat/internal/flagx"
	"github.com/dmitrijs2005/difychat/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds. Numeric and boolean
// fields are pointers so an explicit zero can be told apart from a missing key.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, the fields present in the file are copied into
// the runtime Config struct.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	DifyBaseURL                string          `json:"dify_base_url"`
	DifyAPIKey                 string          `json:"dify_api_key"`
	UpstreamTimeout            timex.Duration  `json:"upstream_timeout"`
	UpstreamMaxRetries         *int            `json:"upstream_max_retries"`
	UpstreamRetryDelay         *timex.Duration `json:"upstream_retry_delay"`
	UpstreamInsecureSkipVerify *bool           `json:"upstream_insecure_skip_verify"`
	FailureAsAnswer            *bool           `json:"failure_as_answer"`
	FilePrompt                 string          `json:"file_prompt"`

	UploadDir     string `json:"upload_dir"`
	MaxUploadSize int64  `json:"max_upload_size"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	RedisAddr     string         `json:"redis_addr"`
	RedisPassword string         `json:"redis_password"`
	StatsCacheTTL timex.Duration `json:"stats_cache_ttl"`

	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	AllowedOrigins string `json:"cors_allowed_origins"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
//
// Only keys present in the file override the current values.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.ConfigFilePath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)

	setString(&config.DifyBaseURL, c.DifyBaseURL)
	setString(&config.DifyAPIKey, c.DifyAPIKey)
	setDuration(&config.UpstreamTimeout, c.UpstreamTimeout)
	if c.UpstreamMaxRetries != nil {
		config.UpstreamMaxRetries = *c.UpstreamMaxRetries
	}
	if c.UpstreamRetryDelay != nil {
		config.UpstreamRetryDelay = c.UpstreamRetryDelay.Duration
	}
	if c.UpstreamInsecureSkipVerify != nil {
		config.UpstreamInsecureSkipVerify = *c.UpstreamInsecureSkipVerify
	}
	if c.FailureAsAnswer != nil {
		config.FailureAsAnswer = *c.FailureAsAnswer
	}
	setString(&config.FilePrompt, c.FilePrompt)

	setString(&config.UploadDir, c.UploadDir)
	if c.MaxUploadSize != 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setDuration(&config.StatsCacheTTL, c.StatsCacheTTL)

	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.AllowedOrigins, c.AllowedOrigins)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
