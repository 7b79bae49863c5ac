// Package config loads Click Fit server settings.
//
// Values come from, in increasing priority: struct-tag defaults, the process
// environment (after an optional .env file is loaded), and an optional YAML
// file passed on the command line.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvDevelopment enables verbose errors and caller reporting.
	EnvDevelopment = "development"
	// EnvProduction redacts unexpected error messages.
	EnvProduction = "production"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port string `env:"PORT,default=3000" yaml:"port"`
	Env  string `env:"NODE_ENV,default=development" yaml:"env"`

	UploadDir         string `env:"UPLOAD_DIR,default=./upload_images" yaml:"uploadDir"`
	PublicPrefix      string `env:"UPLOAD_PUBLIC_PREFIX,default=/uploads" yaml:"publicPrefix"`
	MaxFileSize       int64  `env:"MAX_FILE_SIZE,default=5242880" yaml:"maxFileSize"`
	MaxFiles          int    `env:"MAX_FILES,default=10" yaml:"maxFiles"`
	AllowedMIMETypes  string `env:"ALLOWED_MIME_TYPES,default=image/jpeg|image/png|image/gif|image/webp" yaml:"allowedMimeTypes"`
	AllowedExtensions string `env:"ALLOWED_EXTENSIONS,default=.jpg|.jpeg|.png|.gif|.webp" yaml:"allowedExtensions"`
	VerifyContent     bool   `env:"VERIFY_CONTENT,default=false" yaml:"verifyContent"`

	CORSOrigin string `env:"FRONTEND_URL,default=*" yaml:"corsOrigin"`

	StorageBackend string `env:"STORAGE_BACKEND,default=local" yaml:"storageBackend"`
	S3             S3     `yaml:"s3"`
	GCS            GCS    `yaml:"gcs"`
	Azure          Azure  `yaml:"azure"`

	CatalogDir string `env:"CATALOG_DIR,default=./data/catalog" yaml:"catalogDir"`
	Watch      bool   `env:"WATCH_UPLOADS,default=true" yaml:"watch"`

	DBDriver   string `env:"DB_DRIVER,default=sqlite3" yaml:"dbDriver"`
	DBDSN      string `env:"DB_DSN,default=./data/clickfit.db" yaml:"dbDsn"`
	DBMaxConns int    `env:"DB_MAX_CONNS,default=10" yaml:"dbMaxConns"`

	LogLevel      string `env:"LOG_LEVEL,default=info" yaml:"logLevel"`
	DefaultLocale string `env:"DEFAULT_LOCALE,default=en" yaml:"defaultLocale"`

	Telemetry Telemetry `yaml:"telemetry"`
}

// S3 configures the Amazon S3 (or S3-compatible) backend.
type S3 struct {
	Bucket          string `env:"S3_BUCKET" yaml:"bucket"`
	Region          string `env:"S3_REGION,default=us-east-1" yaml:"region"`
	Prefix          string `env:"S3_PREFIX" yaml:"prefix"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID" yaml:"accessKeyId"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" yaml:"secretAccessKey"`
	Endpoint        string `env:"S3_ENDPOINT" yaml:"endpoint"`
	ForcePathStyle  bool   `env:"S3_FORCE_PATH_STYLE,default=false" yaml:"forcePathStyle"`
}

// GCS configures the Google Cloud Storage backend.
type GCS struct {
	Bucket          string `env:"GCS_BUCKET" yaml:"bucket"`
	Prefix          string `env:"GCS_PREFIX" yaml:"prefix"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE" yaml:"credentialsFile"`
}

// Azure configures the Azure Blob Storage backend.
type Azure struct {
	AccountName string `env:"AZURE_ACCOUNT_NAME" yaml:"accountName"`
	AccountKey  string `env:"AZURE_ACCOUNT_KEY" yaml:"accountKey"`
	Container   string `env:"AZURE_CONTAINER" yaml:"container"`
	Prefix      string `env:"AZURE_PREFIX" yaml:"prefix"`
}

// Telemetry toggles the OpenTelemetry providers.
type Telemetry struct {
	ServiceName   string `env:"OTEL_SERVICE_NAME,default=clickfit" yaml:"serviceName"`
	EnableTracing bool   `env:"OTEL_TRACING,default=false" yaml:"tracing"`
	EnableMetrics bool   `env:"OTEL_METRICS,default=false" yaml:"metrics"`
}

// Load reads configuration. dotenvPath and yamlPath are optional; a missing
// .env file is not an error, a missing YAML file is.
func Load(dotenvPath, yamlPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", yamlPath, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("max files must be positive, got %d", c.MaxFiles)
	}
	if len(c.MIMETypes()) == 0 {
		return fmt.Errorf("at least one allowed MIME type is required")
	}
	if len(c.Extensions()) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	switch c.StorageBackend {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("upload directory is required for local storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the gcs backend")
		}
	case "azure":
		if c.Azure.AccountName == "" || c.Azure.Container == "" {
			return fmt.Errorf("AZURE_ACCOUNT_NAME and AZURE_CONTAINER are required for the azure backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if !strings.HasPrefix(c.PublicPrefix, "/") {
		return fmt.Errorf("public prefix must start with '/', got %q", c.PublicPrefix)
	}
	return nil
}

// IsDevelopment reports whether verbose error bodies are allowed.
func (c *Config) IsDevelopment() bool {
	return c.Env != EnvProduction
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// MIMETypes returns the allowed MIME types as a slice.
func (c *Config) MIMETypes() []string {
	return splitList(c.AllowedMIMETypes, false)
}

// Extensions returns the allowed extensions, lowercased and dot-prefixed.
func (c *Config) Extensions() []string {
	exts := splitList(c.AllowedExtensions, true)
	for i, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			exts[i] = "." + ext
		}
	}
	return exts
}

// AbsUploadDir resolves UploadDir against the working directory.
func (c *Config) AbsUploadDir() (string, error) {
	return filepath.Abs(c.UploadDir)
}

// splitList accepts both '|' and ',' as separators.
func splitList(s string, lower bool) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if lower {
			f = strings.ToLower(f)
		}
		out = append(out, f)
	}
	return out
}
