package config

import (
	"errors"
)

var ErrPrefork = errors.New("APP_PREFORK is not supported: sessions live in process memory and forked workers would not share them")

type Config struct {
	Address string `json:"address" env:"APP_ADDRESS"`
	// Prefork is rejected by Validate; follow-up requests must reach the process holding the session.
	Prefork bool `json:"prefork" env:"APP_PREFORK"`

	AllowedOrigins []string `json:"allowedOrigins" env:"APP_ALLOWED_ORIGINS"`

	// Decoder selects the frame source backend: "astiav" (in-process libav) or "ffmpeg" (subprocess).
	Decoder string `json:"decoder" env:"APP_DECODER"`

	WorkDir     string `json:"workDir" env:"APP_WORK_DIR"`
	SessionTTL  int    `json:"sessionTtl" env:"APP_SESSION_TTL"` // seconds
	MaxSessions int64  `json:"maxSessions" env:"APP_MAX_SESSIONS"`

	MaxVideoSize int `json:"maxVideoSize" env:"APP_MAX_VIDEO_SIZE"` // MB, 0 = unlimited
	JpegQuality  int `json:"jpegQuality" env:"APP_JPEG_QUALITY"`

	Webp         bool `json:"webp" env:"APP_WEBP"`
	PreviewWidth int  `json:"previewWidth" env:"APP_PREVIEW_WIDTH"`

	RateLimit int   `json:"rateLimit" env:"APP_RATE_LIMIT"` // uploads per minute per IP, 0 = off
	Metrics   *bool `json:"metrics" env:"APP_METRICS"`

	S3Enabled    bool   `json:"s3Enabled" env:"S3_ENABLED"`
	S3Endpoint   string `json:"s3Endpoint" env:"S3_ENDPOINT"`
	S3AccessKey  string `json:"-" env:"S3_ACCESS_KEY"`
	S3SecretKey  string `json:"-" env:"S3_SECRET_KEY"`
	S3UseSSL     bool   `json:"s3UseSsl" env:"S3_USE_SSL"`
	S3Region     string `json:"s3Region" env:"S3_REGION"`
	S3Bucket     string `json:"s3Bucket" env:"S3_BUCKET"`
	S3Prefix     string `json:"s3Prefix" env:"S3_PREFIX"`
	S3PresignTTL int    `json:"s3PresignTtl" env:"S3_PRESIGN_TTL"` // seconds

	OtelEndpoint string `json:"otelEndpoint" env:"OTEL_EXPORTER_ENDPOINT"`
}

const (
	DecoderAstiav = "astiav"
	DecoderFFmpeg = "ffmpeg"

	DefaultSessionTTL   = 1800 // 30 minutes
	DefaultMaxSessions  = 64
	DefaultJpegQuality  = 90
	DefaultPreviewWidth = 300
	DefaultPresignTTL   = 3600
	DefaultS3Region     = "us-east-1"
)

// ApplyDefaults fills zero values the same way for the server and the tests.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":3000"
	}

	if c.Decoder == "" {
		c.Decoder = DecoderAstiav
	}

	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}

	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}

	if c.JpegQuality < 1 || c.JpegQuality > 100 {
		c.JpegQuality = DefaultJpegQuality
	}

	if c.PreviewWidth <= 0 {
		c.PreviewWidth = DefaultPreviewWidth
	}

	if c.S3Region == "" {
		c.S3Region = DefaultS3Region
	}

	if c.S3PresignTTL <= 0 {
		c.S3PresignTTL = DefaultPresignTTL
	}

	if c.Metrics == nil {
		metrics := true
		c.Metrics = &metrics
	}
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Prefork {
		return ErrPrefork
	}

	if c.S3Enabled && (c.S3Endpoint == "" || c.S3Bucket == "") {
		return errors.New("S3_ENDPOINT and S3_BUCKET are required when S3_ENABLED is set")
	}

	return nil
}
