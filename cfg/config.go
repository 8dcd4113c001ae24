package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// SignalBackendType selects the cross-process signal bus backend
type SignalBackendType string

const (
	SignalLocal SignalBackendType = "local" // In-process hub only (single node)
	SignalNats  SignalBackendType = "nats"  // NATS core pub/sub
	SignalKafka SignalBackendType = "kafka" // Kafka topic per channel
)

// PostConfiguration controls post creation and editing
type PostConfiguration struct {
	MinimumPostLength  int  `toml:"minimum_post_length"`
	MaximumPostLength  int  `toml:"maximum_post_length"`
	MinimumTitleLength int  `toml:"minimum_title_length"`
	MaximumTitleLength int  `toml:"maximum_title_length"`
	TrackIPPerPost     bool `toml:"track_ip_per_post"`
	EnablePostHistory  bool `toml:"enable_post_history"`
	MinRepPostLinks    int  `toml:"min_rep_post_links"`  // Reputation required to post links
	PostDelaySeconds   int  `toml:"post_delay_seconds"`  // Minimum seconds between posts per user
}

// GuestConfiguration controls anonymous posting
type GuestConfiguration struct {
	AllowHandles            bool `toml:"allow_handles"`
	AllowReplyNotifications bool `toml:"allow_reply_notifications"`
	MaximumHandleLength     int  `toml:"maximum_handle_length"`
}

// ModerationConfiguration controls the banned-word content filter
type ModerationConfiguration struct {
	BannedWords []string `toml:"banned_words"`
}

// TranslatorConfiguration for the remote translation service
type TranslatorConfiguration struct {
	URL       string `toml:"url"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// SignalConfiguration controls the cross-process signal bus
type SignalConfiguration struct {
	Backend       SignalBackendType `toml:"backend"`
	NatsURL       string            `toml:"nats_url"`
	KafkaBrokers  []string          `toml:"kafka_brokers"`
	ChannelPrefix string            `toml:"channel_prefix"`
}

// CacheConfiguration controls the rendered-post cache
type CacheConfiguration struct {
	PostCacheSize int `toml:"post_cache_size"`
}

// HTTPConfiguration for the API server
type HTTPConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	AuthToken   string `toml:"auth_token"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// StoreConfiguration controls the Pebble-backed store
type StoreConfiguration struct {
	CacheSizeMB    int `toml:"cache_size_mb"`
	MemTableSizeMB int `toml:"mem_table_size_mb"`
	MemTableCount  int `toml:"mem_table_count"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Post       PostConfiguration       `toml:"post"`
	Guest      GuestConfiguration      `toml:"guest"`
	Moderation ModerationConfiguration `toml:"moderation"`
	Translator TranslatorConfiguration `toml:"translator"`
	Signal     SignalConfiguration     `toml:"signal"`
	Cache      CacheConfiguration      `toml:"cache"`
	HTTP       HTTPConfiguration       `toml:"http"`
	Store      StoreConfiguration      `toml:"store"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	HTTPPortFlag   = flag.Int("http-port", 0, "HTTP port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "./burrow-data",

	Post: PostConfiguration{
		MinimumPostLength:  8,
		MaximumPostLength:  32767,
		MinimumTitleLength: 3,
		MaximumTitleLength: 255,
		TrackIPPerPost:     false,
		EnablePostHistory:  true,
		MinRepPostLinks:    0,
		PostDelaySeconds:   10,
	},

	Guest: GuestConfiguration{
		AllowHandles:            true,
		AllowReplyNotifications: false,
		MaximumHandleLength:     255,
	},

	Moderation: ModerationConfiguration{
		BannedWords: []string{},
	},

	Translator: TranslatorConfiguration{
		URL:       "",
		TimeoutMS: 2000,
	},

	Signal: SignalConfiguration{
		Backend:       SignalLocal,
		NatsURL:       "",
		KafkaBrokers:  []string{},
		ChannelPrefix: "burrow",
	},

	Cache: CacheConfiguration{
		PostCacheSize: 8192,
	},

	HTTP: HTTPConfiguration{
		BindAddress: "0.0.0.0",
		Port:        4567,
		AuthToken:   "",
	},

	Store: StoreConfiguration{
		CacheSizeMB:    64,
		MemTableSizeMB: 16,
		MemTableCount:  2,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *HTTPPortFlag != 0 {
		Config.HTTP.Port = *HTTPPortFlag
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("burrow")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.HTTP.Port < 1 || Config.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", Config.HTTP.Port)
	}

	if Config.Post.MinimumPostLength < 1 {
		return fmt.Errorf("minimum post length must be >= 1")
	}

	if Config.Post.MaximumPostLength < Config.Post.MinimumPostLength {
		return fmt.Errorf("maximum post length must be >= minimum post length")
	}

	if Config.Post.MinimumTitleLength < 1 {
		return fmt.Errorf("minimum title length must be >= 1")
	}

	if Config.Post.MaximumTitleLength < Config.Post.MinimumTitleLength {
		return fmt.Errorf("maximum title length must be >= minimum title length")
	}

	if Config.Post.PostDelaySeconds < 0 {
		return fmt.Errorf("post delay must be >= 0")
	}

	if Config.Guest.MaximumHandleLength < 1 {
		return fmt.Errorf("maximum guest handle length must be >= 1")
	}

	switch Config.Signal.Backend {
	case SignalLocal:
	case SignalNats:
		if Config.Signal.NatsURL == "" {
			return fmt.Errorf("signal backend %q requires nats_url", SignalNats)
		}
	case SignalKafka:
		if len(Config.Signal.KafkaBrokers) == 0 {
			return fmt.Errorf("signal backend %q requires kafka_brokers", SignalKafka)
		}
	default:
		return fmt.Errorf("invalid signal backend: %s", Config.Signal.Backend)
	}

	if Config.Cache.PostCacheSize < 1 {
		return fmt.Errorf("post cache size must be >= 1")
	}

	if Config.Translator.TimeoutMS < 1 {
		return fmt.Errorf("translator timeout must be >= 1ms")
	}

	if Config.Store.CacheSizeMB < 1 {
		return fmt.Errorf("store cache size must be >= 1MB")
	}

	if Config.Store.MemTableSizeMB < 1 {
		return fmt.Errorf("store memtable size must be >= 1MB")
	}

	if Config.Store.MemTableCount < 1 {
		return fmt.Errorf("store memtable count must be >= 1")
	}

	return nil
}
