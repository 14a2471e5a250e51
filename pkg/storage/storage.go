package storage

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
	AutoMigrate         bool          `yaml:"auto_migrate"`

	// S3 config
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`

	// PublicBaseURL prefixes object keys in URLs handed to clients.
	PublicBaseURL string `yaml:"public_base_url"`
	// DefaultImages are URL fragments of shared placeholder images that must
	// never be deleted.
	DefaultImages []string `yaml:"default_images"`

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "us-east-1",
		PublicBaseURL:    "http://localhost:8080/images",
		DefaultImages:    []string{"icons-default-pot.png"},
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}

// BlobStore stores uploaded images by object key.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NopBlobStore is used when no object store is configured.
type NopBlobStore struct{}

func (NopBlobStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

func (NopBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (NopBlobStore) Delete(ctx context.Context, key string) error { return nil }

func (NopBlobStore) HealthCheck(ctx context.Context) error { return nil }

// Pot is a user's potted plant.
type Pot struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	PlantType      string    `json:"plantType,omitempty"`
	Note           string    `json:"note,omitempty"`
	PlantDate      string    `json:"plantDate,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	LastCare       string    `json:"lastCare,omitempty"`
	LastCareAction string    `json:"lastCareAction,omitempty"`
	SortOrder      int       `json:"sortOrder"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CareRecord is one logged care action on a pot.
type CareRecord struct {
	ID          int64     `json:"id"`
	PotID       string    `json:"potId"`
	Type        string    `json:"type"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	ImageURLs   []string  `json:"imageUrls"`
	CareDate    string    `json:"careDate"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TimelineEntry is a dated photo journal entry for a pot.
type TimelineEntry struct {
	ID          int64     `json:"id"`
	PotID       string    `json:"potId"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	Images      []string  `json:"images"`
	Video       string    `json:"video,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CareSchedule is a recurring care interval for one care type on a pot.
type CareSchedule struct {
	ID           int64     `json:"id"`
	PotID        string    `json:"potId"`
	CareType     string    `json:"careType"`
	IntervalDays int       `json:"intervalDays"`
	CustomAction string    `json:"customAction,omitempty"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Populated by joined listings.
	PotName     string `json:"potName,omitempty"`
	PotImageURL string `json:"potImageUrl,omitempty"`
	LastCare    string `json:"lastCare,omitempty"`
}

// Reminder is a due care schedule.
type Reminder struct {
	CareSchedule
	DaysSinceCare int  `json:"daysSinceCare"`
	IsOverdue     bool `json:"isOverdue"`
}

// Plant is a reference catalog entry. The descriptive blobs are stored as
// JSON and passed through untouched.
type Plant struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Category           string          `json:"category,omitempty"`
	CareDifficulty     string          `json:"careDifficulty,omitempty"`
	BasicInfo          json.RawMessage `json:"basicInfo,omitempty"`
	OrnamentalFeatures json.RawMessage `json:"ornamentalFeatures,omitempty"`
	CareGuide          json.RawMessage `json:"careGuide,omitempty"`
	ImageURL           string          `json:"imageUrl,omitempty"`
	Synonyms           []string        `json:"synonyms"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// UserSummary is the admin view of an account.
type UserSummary struct {
	ID            string     `json:"id"`
	Kind          string     `json:"type"`
	Email         string     `json:"email,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	IsDisabled    bool       `json:"isDisabled"`
	PotQuota      *int       `json:"potQuota,omitempty"`
	PotCount      int        `json:"potCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
}

// Page describes a slice of a larger result set.
type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}
