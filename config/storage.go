package config

import (
	"fmt"
	"strings"
	"time"
)

// StorageConfig contains S3-compatible object storage configuration.
type StorageConfig struct {
	Bucket   string `env:"BUCKET"   envDefault:"docpipe-documents"`
	Region   string `env:"REGION"   envDefault:"us-east-1"`
	Endpoint string `env:"ENDPOINT"`
	// UsePathStyle is required by MinIO and most local S3 emulators.
	UsePathStyle    bool   `env:"USE_PATH_STYLE"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`

	UploadURLTTL   time.Duration `env:"UPLOAD_URL_TTL"   envDefault:"1h"`
	DownloadURLTTL time.Duration `env:"DOWNLOAD_URL_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	s.Bucket = strings.TrimSpace(s.Bucket)
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	if s.UploadURLTTL <= 0 {
		s.UploadURLTTL = time.Hour
	}
	if s.DownloadURLTTL <= 0 {
		s.DownloadURLTTL = 5 * time.Minute
	}
	// S3 rejects presigned URLs valid for more than 7 days.
	if s.UploadURLTTL > 7*24*time.Hour {
		s.UploadURLTTL = 7 * 24 * time.Hour
	}
	if s.DownloadURLTTL > 7*24*time.Hour {
		s.DownloadURLTTL = 7 * 24 * time.Hour
	}
}

// HasStaticCredentials reports whether an access key pair is configured.
func (s *StorageConfig) HasStaticCredentials() bool {
	return s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// ScannerMode selects the antivirus backend.
type ScannerMode string

const (
	// ScannerModeHTTP posts object bytes to an antivirus REST service.
	ScannerModeHTTP ScannerMode = "http"
	// ScannerModeSignature matches the EICAR test signature locally (development only).
	ScannerModeSignature ScannerMode = "signature"
)

// UnmarshalText implements encoding.TextUnmarshaler for ScannerMode.
func (m *ScannerMode) UnmarshalText(text []byte) error {
	v := ScannerMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case ScannerModeHTTP, ScannerModeSignature:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid ScannerMode: %q (valid options: http, signature)", v)
	}
}

// ScannerConfig contains antivirus scanner configuration.
type ScannerConfig struct {
	Mode    ScannerMode   `env:"MODE"    envDefault:"signature"`
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
	// InfectedExpr is a JMESPath expression evaluated against the scanner response.
	InfectedExpr string `env:"INFECTED_EXPR"  envDefault:"infected"`
	// SignatureExpr extracts the detected signature name.
	SignatureExpr string `env:"SIGNATURE_EXPR" envDefault:"viruses[0]"`
	EngineName    string `env:"ENGINE_NAME"    envDefault:"clamav-rest"`
}

// Sanitize applies guardrails to scanner configuration values.
func (s *ScannerConfig) Sanitize() {
	s.URL = strings.TrimSpace(s.URL)
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	if strings.TrimSpace(s.InfectedExpr) == "" {
		s.InfectedExpr = "infected"
	}
}

// UploadConfig contains upload validation rules.
type UploadConfig struct {
	AllowedMimeTypes []string `env:"ALLOWED_MIME_TYPES" envDefault:"application/pdf,image/jpeg,image/png,image/heic,image/tiff"`
	MaxSizeBytes     int64    `env:"MAX_SIZE_BYTES"     envDefault:"26214400"`
}

// Sanitize applies guardrails to upload configuration values.
func (u *UploadConfig) Sanitize() {
	u.AllowedMimeTypes = trimAll(u.AllowedMimeTypes)
	if u.MaxSizeBytes < 0 {
		u.MaxSizeBytes = 0
	}
}
