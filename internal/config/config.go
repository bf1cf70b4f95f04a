// Package config provides configuration loading and structs for the assethub service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Vector      VectorConfig      `yaml:"vector"`
	Queue       QueueConfig       `yaml:"queue"`
	Video       VideoConfig       `yaml:"video"`
	Search      SearchConfig      `yaml:"search"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	// RunWorkers starts the vectorization pool inside the server process.
	RunWorkers bool `yaml:"run_workers"`
}

// StorageConfig holds local paths for the catalog and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	MemoryIndexPath string `yaml:"memory_index_path"`
	ScratchDir      string `yaml:"scratch_dir"`
}

// ObjectStoreConfig holds blob storage settings.
type ObjectStoreConfig struct {
	Type            string        `yaml:"type"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKey       string        `yaml:"access_key"`
	SecretKey       string        `yaml:"secret_key"`
	UseSSL          bool          `yaml:"use_ssl"`
	Region          string        `yaml:"region"`
	AssetsBucket    string        `yaml:"assets_bucket"`
	ThumbnailBucket string        `yaml:"thumbnail_bucket"`
	FramesBucket    string        `yaml:"frames_bucket"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

// EmbeddingConfig holds CLIP embedder settings.
type EmbeddingConfig struct {
	Type            string `yaml:"type"`
	VisualModelPath string `yaml:"visual_model_path"`
	TextModelPath   string `yaml:"text_model_path"`
	VocabPath       string `yaml:"vocab_path"`
	Dimensions      int    `yaml:"dimensions"`
	MaxTokens       int    `yaml:"max_tokens"`
	ImageSize       int    `yaml:"image_size"`
	CacheSize       int    `yaml:"cache_size"`
}

// VectorConfig selects and configures the ANN index.
type VectorConfig struct {
	Type             string `yaml:"type"`
	MilvusAddress    string `yaml:"milvus_address"`
	MilvusUsername   string `yaml:"milvus_username"`
	MilvusPassword   string `yaml:"milvus_password"`
	Collection       string `yaml:"collection"`
	HNSWM            int    `yaml:"hnsw_m"`
	HNSWConstruction int    `yaml:"hnsw_ef_construction"`
	SearchEf         int    `yaml:"search_ef"`
}

// QueueConfig holds job queue and retry policy settings.
type QueueConfig struct {
	Type          string        `yaml:"type"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Name          string        `yaml:"name"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	Workers       int           `yaml:"workers"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
}

// VideoConfig holds keyframe sampling policy and decoder binaries.
type VideoConfig struct {
	FFmpegPath    string  `yaml:"ffmpeg_path"`
	FFprobePath   string  `yaml:"ffprobe_path"`
	FrameInterval float64 `yaml:"frame_interval"`
	MinFrames     int     `yaml:"min_frames"`
	MaxFrames     int     `yaml:"max_frames"`
	JPEGQuality   int     `yaml:"jpeg_quality"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultTopK     int `yaml:"default_top_k"`
	MaxTopK         int `yaml:"max_top_k"`
	OverFetchFactor int `yaml:"over_fetch_factor"`
}

// WatchConfig holds drop-folder ingest settings.
type WatchConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Directories []string      `yaml:"directories"`
	Patterns    []string      `yaml:"patterns"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.MemoryIndexPath = expandPath(cfg.Storage.MemoryIndexPath, configDir)
	if cfg.Storage.ScratchDir != "" {
		cfg.Storage.ScratchDir = expandPath(cfg.Storage.ScratchDir, configDir)
	}
	for _, p := range []*string{&cfg.Embedding.VisualModelPath, &cfg.Embedding.TextModelPath, &cfg.Embedding.VocabPath} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selectors and sampling bounds.
func (c *Config) Validate() error {
	switch c.ObjectStore.Type {
	case "minio", "memory":
	default:
		return fmt.Errorf("unknown object_store type: %s", c.ObjectStore.Type)
	}
	switch c.Embedding.Type {
	case "clip", "mock":
	default:
		return fmt.Errorf("unknown embedding type: %s", c.Embedding.Type)
	}
	switch c.Vector.Type {
	case "memory", "milvus":
	default:
		return fmt.Errorf("unknown vector type: %s", c.Vector.Type)
	}
	switch c.Queue.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}
	if c.Video.MinFrames > c.Video.MaxFrames {
		return fmt.Errorf("video min_frames (%d) exceeds max_frames (%d)", c.Video.MinFrames, c.Video.MaxFrames)
	}
	return nil
}

// CheckStandaloneWorker reports why a worker running in its own process could not
// share work with the server: a memory queue never receives the server's jobs and a
// memory vector index keeps the worker's vectors out of the server's searches.
func (c *Config) CheckStandaloneWorker() error {
	if c.Queue.Type == "memory" {
		return fmt.Errorf("queue.type is memory: a separate worker never sees the server's jobs; use redis or run workers inside the server")
	}
	if c.Vector.Type == "memory" {
		return fmt.Errorf("vector.type is memory: vectors written by a separate worker are invisible to the server; use milvus or run workers inside the server")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. "~/" and other relative paths resolve against
// the home directory; paths starting with "./" are relative to configDir.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
