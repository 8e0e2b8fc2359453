package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Mongo   MongoConfig   `json:"mongo"`
	Storage StorageConfig `json:"storage"`
	Signing SigningConfig `json:"signing"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// MongoConfig represents the signature record store configuration
type MongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// StorageConfig selects and configures the blob store backend.
// Backend is "s3", "docstore" or "local".
type StorageConfig struct {
	Backend  string         `json:"backend"`
	LocalDir string         `json:"local_dir"`
	S3       S3Config       `json:"s3"`
	DocStore DocStoreConfig `json:"doc_store"`
}

// S3Config represents S3 blob store configuration. AccessKeyID and
// SecretAccessKey are optional; when unset the default AWS credential
// chain applies. Endpoint supports S3-compatible stores.
type S3Config struct {
	Bucket          string        `json:"bucket"`
	Region          string        `json:"region"`
	KeyPrefix       string        `json:"key_prefix"`
	PresignTTL      time.Duration `json:"presign_ttl"`
	UsePathStyle    bool          `json:"use_path_style"`
	Endpoint        string        `json:"endpoint"`
	AccessKeyID     string        `json:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key"`
}

// DocStoreConfig represents the remote document storage service
type DocStoreConfig struct {
	ServerURL string `json:"server_url"`
	LoginURL  string `json:"login_url"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Code      string `json:"code"`
}

// SigningConfig represents the self-sign engine configuration
type SigningConfig struct {
	CertDir          string `json:"cert_dir"`
	BundlePassphrase string `json:"bundle_passphrase"`
	Organization     string `json:"organization"`
	Location         string `json:"location"`
	WorkerPoolSize   int    `json:"worker_pool_size"`
	WorkerQueueSize  int    `json:"worker_queue_size"`
	RefreshSchedule  string `json:"refresh_schedule"`
}

// LoadConfig loads configuration from a JSON file, falling back to
// environment variables for any field the file does not set.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "signhub",
			Collection: "signatures",
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "signed_documents",
			S3: S3Config{
				KeyPrefix:  "signed",
				PresignTTL: 15 * time.Minute,
			},
		},
		Signing: SigningConfig{
			CertDir:         "certificates",
			Organization:    "Document Signing Platform",
			Location:        "Document Signing Platform",
			WorkerPoolSize:  4,
			WorkerQueueSize: 64,
			RefreshSchedule: "@every 5m",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}
	if v := os.Getenv("DOCUMENT_STORAGE_URL"); v != "" {
		cfg.Storage.DocStore.ServerURL = v
	}
	if v := os.Getenv("DOCUMENT_STORAGE_LOGIN_URL"); v != "" {
		cfg.Storage.DocStore.LoginURL = v
	}
	if v := os.Getenv("DOCUMENT_STORAGE_EMAIL"); v != "" {
		cfg.Storage.DocStore.Email = v
	}
	if v := os.Getenv("DOCUMENT_STORAGE_PASSWORD"); v != "" {
		cfg.Storage.DocStore.Password = v
	}
	if v := os.Getenv("DOCUMENT_STORAGE_CODE"); v != "" {
		cfg.Storage.DocStore.Code = v
	}
	if v := os.Getenv("CERT_DIR"); v != "" {
		cfg.Signing.CertDir = v
	}
	if v := os.Getenv("CERT_BUNDLE_PASSPHRASE"); v != "" {
		cfg.Signing.BundlePassphrase = v
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "s3", "docstore", "local":
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3 backend requires a bucket")
	}
	if c.Storage.Backend == "docstore" && c.Storage.DocStore.ServerURL == "" {
		return fmt.Errorf("docstore backend requires a server url")
	}
	if c.Signing.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive")
	}
	return nil
}
