package config

import "time"

// DefaultWatchPatterns matches every file type the ingest gate accepts.
var DefaultWatchPatterns = []string{"**/*.{jpg,jpeg,png,gif,webp,mp4,mov,avi,webm,mp3,wav,ogg,flac}"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 500 << 20
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "~/.assethub/data/catalog.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "~/.assethub/data/names.bleve"
	}
	if cfg.Storage.MemoryIndexPath == "" {
		cfg.Storage.MemoryIndexPath = "~/.assethub/data/vectors.bin"
	}

	if cfg.ObjectStore.Type == "" {
		cfg.ObjectStore.Type = "minio"
	}
	if cfg.ObjectStore.Endpoint == "" {
		cfg.ObjectStore.Endpoint = "localhost:9000"
	}
	if cfg.ObjectStore.AssetsBucket == "" {
		cfg.ObjectStore.AssetsBucket = "assets"
	}
	if cfg.ObjectStore.ThumbnailBucket == "" {
		cfg.ObjectStore.ThumbnailBucket = "thumbnails"
	}
	if cfg.ObjectStore.FramesBucket == "" {
		cfg.ObjectStore.FramesBucket = "frames"
	}
	if cfg.ObjectStore.PresignTTL == 0 {
		cfg.ObjectStore.PresignTTL = time.Hour
	}

	if cfg.Embedding.Type == "" {
		cfg.Embedding.Type = "clip"
	}
	if cfg.Embedding.VisualModelPath == "" {
		cfg.Embedding.VisualModelPath = "~/.assethub/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "~/.assethub/models/clip-vit-b32-textual.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}

	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Vector.MilvusAddress == "" {
		cfg.Vector.MilvusAddress = "localhost:19530"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "asset_vectors"
	}
	if cfg.Vector.HNSWM == 0 {
		cfg.Vector.HNSWM = 16
	}
	if cfg.Vector.HNSWConstruction == 0 {
		cfg.Vector.HNSWConstruction = 256
	}
	if cfg.Vector.SearchEf == 0 {
		cfg.Vector.SearchEf = 64
	}

	if cfg.Queue.Type == "" {
		cfg.Queue.Type = "memory"
	}
	// Nothing outside the server process can drain a memory queue.
	if cfg.Queue.Type == "memory" {
		cfg.Server.RunWorkers = true
	}
	if cfg.Queue.RedisAddr == "" {
		cfg.Queue.RedisAddr = "localhost:6379"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "vectorize"
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.RetryDelay == 0 {
		cfg.Queue.RetryDelay = 60 * time.Second
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = time.Hour
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 2
	}
	if cfg.Queue.PollTimeout == 0 {
		cfg.Queue.PollTimeout = 5 * time.Second
	}

	if cfg.Video.FFmpegPath == "" {
		cfg.Video.FFmpegPath = "ffmpeg"
	}
	if cfg.Video.FFprobePath == "" {
		cfg.Video.FFprobePath = "ffprobe"
	}
	if cfg.Video.FrameInterval == 0 {
		cfg.Video.FrameInterval = 2.0
	}
	if cfg.Video.MinFrames == 0 {
		cfg.Video.MinFrames = 5
	}
	if cfg.Video.MaxFrames == 0 {
		cfg.Video.MaxFrames = 50
	}
	if cfg.Video.JPEGQuality == 0 {
		cfg.Video.JPEGQuality = 85
	}

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 20
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.OverFetchFactor == 0 {
		cfg.Search.OverFetchFactor = 2
	}

	if cfg.Watch.Patterns == nil {
		cfg.Watch.Patterns = append([]string(nil), DefaultWatchPatterns...)
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
