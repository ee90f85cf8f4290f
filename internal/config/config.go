package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Overlay  OverlayConfig  `mapstructure:"overlay"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Handoff  HandoffConfig  `mapstructure:"handoff"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"` // how long /recording/stop waits for finalize

	// Optional HTTP/3 listener for the control API
	HTTP3Enabled   bool          `mapstructure:"http3_enabled"`
	HTTP3Port      int           `mapstructure:"http3_port"`
	TLSCertFile    string        `mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `mapstructure:"tls_key_file"`
	MaxIdleTimeout time.Duration `mapstructure:"max_idle_timeout"`

	// Mutating control routes are rate limited
	ControlRate  float64 `mapstructure:"control_rate"` // requests per second
	ControlBurst int     `mapstructure:"control_burst"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// RecorderConfig holds the fixed output configuration of the muxer. Values
// are not negotiated at runtime.
type RecorderConfig struct {
	OutputDir           string        `mapstructure:"output_dir"`
	FilePrefix          string        `mapstructure:"file_prefix"`
	SampleEvery         int           `mapstructure:"sample_every"` // record one of every N display frames
	VideoTimescale      uint32        `mapstructure:"video_timescale"`
	JPEGQuality         int           `mapstructure:"jpeg_quality"`
	AudioSampleRate     int           `mapstructure:"audio_sample_rate"`
	AudioBitDepth       int           `mapstructure:"audio_bit_depth"`
	FragmentDuration    time.Duration `mapstructure:"fragment_duration"`
	MaxPendingFragments int           `mapstructure:"max_pending_fragments"`
	QueueSize           int           `mapstructure:"queue_size"` // serial writer queue capacity
}

type OverlayConfig struct {
	SwitchDebounce time.Duration `mapstructure:"switch_debounce"`
	FallbackScale  float64       `mapstructure:"fallback_scale"`
	FocalLength    float64       `mapstructure:"focal_length"` // pixels, used to project overlays
	Composite      bool          `mapstructure:"composite"`
	Watermark      string        `mapstructure:"watermark"` // stamped on recorded frames when set
}

type CameraConfig struct {
	Width             int           `mapstructure:"width"`
	Height            int           `mapstructure:"height"`
	DisplayRate       int           `mapstructure:"display_rate"` // frames per second
	InitialPosition   string        `mapstructure:"initial_position"`
	SwitchGuard       time.Duration `mapstructure:"switch_guard"`
	SwitchSettle      time.Duration `mapstructure:"switch_settle"`
	AudioChunkSamples int           `mapstructure:"audio_chunk_samples"`
	PoolSize          int           `mapstructure:"pool_size"`
}

type HandoffConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// Load reads configuration from configPath, applies REELCAM_* environment
// overrides and validates the result. An empty path loads defaults only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("REELCAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.stop_timeout", "20s")
	v.SetDefault("server.http3_enabled", false)
	v.SetDefault("server.http3_port", 8443)
	v.SetDefault("server.max_idle_timeout", "30s")
	v.SetDefault("server.control_rate", 10.0)
	v.SetDefault("server.control_burst", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 14)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Recorder defaults
	v.SetDefault("recorder.output_dir", "recordings")
	v.SetDefault("recorder.file_prefix", "reel")
	v.SetDefault("recorder.sample_every", 4)
	v.SetDefault("recorder.video_timescale", 90000)
	v.SetDefault("recorder.jpeg_quality", 80)
	v.SetDefault("recorder.audio_sample_rate", 44100)
	v.SetDefault("recorder.audio_bit_depth", 16)
	v.SetDefault("recorder.fragment_duration", "1s")
	v.SetDefault("recorder.max_pending_fragments", 2)
	v.SetDefault("recorder.queue_size", 64)

	// Overlay defaults
	v.SetDefault("overlay.switch_debounce", "1500ms")
	v.SetDefault("overlay.fallback_scale", 1.6)
	v.SetDefault("overlay.focal_length", 900.0)
	v.SetDefault("overlay.composite", true)
	v.SetDefault("overlay.watermark", "")

	// Camera defaults
	v.SetDefault("camera.width", 720)
	v.SetDefault("camera.height", 1280)
	v.SetDefault("camera.display_rate", 60)
	v.SetDefault("camera.initial_position", "front")
	v.SetDefault("camera.switch_guard", "2s")
	v.SetDefault("camera.switch_settle", "400ms")
	v.SetDefault("camera.audio_chunk_samples", 1024)
	v.SetDefault("camera.pool_size", 8)

	// Handoff defaults
	v.SetDefault("handoff.enabled", false)
	v.SetDefault("handoff.redis_addr", "localhost:6379")
	v.SetDefault("handoff.redis_db", 0)
	v.SetDefault("handoff.key_prefix", "reelcam:")
	v.SetDefault("handoff.ttl", "24h")
	v.SetDefault("handoff.dial_timeout", "5s")
}
