package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Storage     StorageConfig     `mapstructure:"storage"`
	InsightFace InsightFaceConfig `mapstructure:"insightface"`
	Processing  ProcessingConfig  `mapstructure:"processing"`
	Search      SearchConfig      `mapstructure:"search"`
	Clustering  ClusteringConfig  `mapstructure:"clustering"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig contains database settings.
type DBConfig struct {
	File string `mapstructure:"file"` // path to the SQLite database file
}

// StorageConfig contains settings for the local image store.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"` // directory for original and compressed images
}

// InsightFaceConfig contains settings for the InsightFace detector service.
type InsightFaceConfig struct {
	URL                string  `mapstructure:"url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	DetectionThreshold float64 `mapstructure:"detection_threshold"`
}

// ProcessingConfig contains settings for the ingestion pipeline.
type ProcessingConfig struct {
	EmbeddingDim      int `mapstructure:"embedding_dim"`       // required embedding dimensionality
	CompressedMaxSize int `mapstructure:"compressed_max_size"` // max edge length of the compressed rendition
	CompressedQuality int `mapstructure:"compressed_quality"`  // JPEG quality of the compressed rendition
	Workers           int `mapstructure:"workers"`             // worker pool size, 0 = derive from CPU count
}

// SearchConfig contains defaults for similarity queries.
type SearchConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	MaxResults int     `mapstructure:"max_results"`
}

// ClusteringConfig contains defaults for identity clustering.
type ClusteringConfig struct {
	Eps            float64 `mapstructure:"eps"`
	MinClusterSize int     `mapstructure:"min_cluster_size"`
}

// CacheConfig contains settings for the extraction result cache.
type CacheConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// CleanupConfig contains settings for the orphaned-file sweeper.
type CleanupConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`  // 0 disables the sweeper
	MinAgeMinutes int `mapstructure:"min_age_minutes"` // files younger than this are never touched
}

// MQTTConfig contains settings for the processing-event publisher.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// Load reads configuration from the given YAML file and environment
// variables prefixed with FACESEARCH_. Defaults are applied for every
// value not present in either source.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("db.file", "/data/face-search.db")
	v.SetDefault("storage.data_dir", "/data/images")
	v.SetDefault("insightface.url", "http://localhost:18081")
	v.SetDefault("insightface.timeout_seconds", 30)
	v.SetDefault("insightface.detection_threshold", 0.5)
	v.SetDefault("processing.embedding_dim", 512)
	v.SetDefault("processing.compressed_max_size", 1024)
	v.SetDefault("processing.compressed_quality", 75)
	v.SetDefault("processing.workers", 0)
	v.SetDefault("search.threshold", 0.6)
	v.SetDefault("search.max_results", 50)
	v.SetDefault("clustering.eps", 0.4)
	v.SetDefault("clustering.min_cluster_size", 2)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("cleanup.interval_hours", 24)
	v.SetDefault("cleanup.min_age_minutes", 60)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "face-search-go")
	v.SetDefault("mqtt.topic_prefix", "facesearch")

	v.SetEnvPrefix("FACESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	return &cfg, nil
}
