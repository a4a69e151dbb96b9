// Package config provides the unified configuration system for Trellis.
// It defines a single BuildConfig structure that every collection build uses,
// ensuring consistent configuration across the entire system.
//
// The configuration is organized into logical sections:
//   - Inference: Factor thresholds and temporal format hints
//   - Render: Worker counts, batching, strict failure mode, caching
//   - Output: Collection root, metadata compression, pretty printing
//   - Upload: Optional object-store deployment of panel artifacts
//   - Observability: Logging and tracing
//
// Example usage:
//
//	cfg := config.NewBuildConfig("gapminder", "./output")
//	cfg.Render.Workers = 8
//	cfg.Render.Strict = true
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML emits the canonical duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BuildConfig is the single unified configuration structure for a
// collection build. The zero value is not usable; construct one with
// NewBuildConfig and override fields as needed.
type BuildConfig struct {
	// Name identifies the collection being built
	Name string `yaml:"name" json:"name"`
	// Description is free text shown by viewers
	Description string `yaml:"description" json:"description"`
	// Root is the directory the collection is written under
	Root string `yaml:"root" json:"root"`

	// Inference controls type inference over non-panel columns
	Inference InferenceConfig `yaml:"inference" json:"inference"`

	// Render controls the panel adapter pipeline
	Render RenderConfig `yaml:"render" json:"render"`

	// Output controls specification serialization
	Output OutputConfig `yaml:"output" json:"output"`

	// Upload configures optional object-store deployment
	Upload UploadConfig `yaml:"upload" json:"upload"`

	// Observability settings for logging and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// InferenceConfig contains type inference settings.
type InferenceConfig struct {
	// FactorThreshold is the maximum unique-value count (inclusive) for a
	// string column to be inferred as a Factor
	FactorThreshold int `yaml:"factor_threshold" json:"factor_threshold"`
	// DateFormat overrides the wire format for inferred Date variables
	DateFormat string `yaml:"date_format" json:"date_format"`
	// TimeFormat overrides the wire format for inferred Time variables
	TimeFormat string `yaml:"time_format" json:"time_format"`
}

// RenderConfig contains panel pipeline settings.
type RenderConfig struct {
	// Workers defines the number of concurrent render workers (0 = auto)
	Workers int `yaml:"workers" json:"workers"`
	// ChunkSize is the number of rows handed to one worker at a time
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Strict promotes any per-panel render failure to a fatal build error
	Strict bool `yaml:"strict" json:"strict"`
	// Force re-renders panels even when a fresh artifact already exists
	Force bool `yaml:"force" json:"force"`
	// MemoryLimitMB caps worker count based on available memory (0 = off)
	MemoryLimitMB int `yaml:"memory_limit_mb" json:"memory_limit_mb"`
	// Timeout bounds a single panel render (0 = none; the core imposes no
	// timeout by default, collaborators enforce their own)
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// OutputConfig contains serialization settings.
type OutputConfig struct {
	// Pretty indents the specification document
	Pretty bool `yaml:"pretty" json:"pretty"`
	// CompressMetadata gzips the per-row metadata file
	CompressMetadata bool `yaml:"compress_metadata" json:"compress_metadata"`
	// CompressionAlgorithm selects the metadata codec (gzip, zstd, lz4)
	CompressionAlgorithm string `yaml:"compression_algorithm" json:"compression_algorithm"`
}

// UploadConfig contains object-store deployment settings.
// When Provider is empty no upload happens and panels stay local.
type UploadConfig struct {
	// Provider selects the uploader ("s3", "gcs" or empty)
	Provider string `yaml:"provider" json:"provider"`
	// Bucket is the target bucket name
	Bucket string `yaml:"bucket" json:"bucket"`
	// Prefix is prepended to every uploaded object key
	Prefix string `yaml:"prefix" json:"prefix"`
	// Region is the bucket region (S3 only)
	Region string `yaml:"region" json:"region"`
	// ProjectID is the cloud project (GCS only)
	ProjectID string `yaml:"project_id" json:"project_id"`
	// CredentialsFile points at a service-account key file (GCS only)
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// PublicBaseURL is the URL panels are served from after upload
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
	// MaxConcurrency limits parallel object uploads
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
}

// ObservabilityConfig contains logging and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// EnableTracing activates span emission around render batches
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// NewBuildConfig creates a BuildConfig with sensible defaults.
func NewBuildConfig(name, root string) *BuildConfig {
	return &BuildConfig{
		Name: name,
		Root: root,
		Inference: InferenceConfig{
			FactorThreshold: 50,
			DateFormat:      "2006-01-02",
			TimeFormat:      "2006-01-02 15:04:05",
		},
		Render: RenderConfig{
			Workers:   runtime.NumCPU(),
			ChunkSize: 64,
			Strict:    false,
			Force:     false,
		},
		Output: OutputConfig{
			Pretty:               false,
			CompressMetadata:     false,
			CompressionAlgorithm: "gzip",
		},
		Upload: UploadConfig{
			MaxConcurrency: 10,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			EnableTracing:     false,
			TracingSampleRate: 0.1,
		},
	}
}

// Validate validates the configuration for correctness.
// Collection builds call this before any inference or rendering work.
func (c *BuildConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Inference.FactorThreshold <= 0 {
		return fmt.Errorf("factor_threshold must be positive")
	}
	if c.Render.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if c.Render.ChunkSize < 0 {
		return fmt.Errorf("chunk_size cannot be negative")
	}
	if c.Upload.Provider != "" {
		if c.Upload.Provider != "s3" && c.Upload.Provider != "gcs" {
			return fmt.Errorf("unknown upload provider %q", c.Upload.Provider)
		}
		if c.Upload.Bucket == "" {
			return fmt.Errorf("upload bucket is required for provider %s", c.Upload.Provider)
		}
		if c.Upload.PublicBaseURL == "" {
			return fmt.Errorf("public_base_url is required for provider %s", c.Upload.Provider)
		}
	}
	if r := c.Observability.TracingSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("tracing_sample_rate must be within [0, 1]")
	}
	return nil
}

// GetWorkers returns the render worker count, ensuring it's at least 1
func (r *RenderConfig) GetWorkers() int {
	if r.Workers <= 0 {
		return runtime.NumCPU()
	}
	return r.Workers
}

// HasUpload returns true if an uploader is configured
func (u *UploadConfig) HasUpload() bool {
	return u.Provider != ""
}
