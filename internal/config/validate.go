package config

import (
	"fmt"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Overlay.Validate(); err != nil {
		return fmt.Errorf("overlay config: %w", err)
	}

	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("camera config: %w", err)
	}

	if err := c.Handoff.Validate(); err != nil {
		return fmt.Errorf("handoff config: %w", err)
	}

	if c.Metrics.Enabled && c.Metrics.Port == c.Server.HTTPPort {
		return fmt.Errorf("metrics port %d collides with http_port", c.Metrics.Port)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if s.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive")
	}

	if s.ControlRate <= 0 {
		return fmt.Errorf("control_rate must be positive")
	}

	if s.ControlBurst <= 0 {
		return fmt.Errorf("control_burst must be positive")
	}

	if s.HTTP3Enabled {
		if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
			return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
		}
		if s.TLSCertFile == "" || s.TLSKeyFile == "" {
			return fmt.Errorf("TLS certificate and key are required for HTTP/3")
		}
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (r *RecorderConfig) Validate() error {
	if r.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if r.FilePrefix == "" {
		return fmt.Errorf("file_prefix cannot be empty")
	}

	if r.SampleEvery < 1 {
		return fmt.Errorf("sample_every must be at least 1")
	}

	if r.VideoTimescale == 0 {
		return fmt.Errorf("video_timescale must be positive")
	}

	if r.JPEGQuality < 1 || r.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100")
	}

	switch r.AudioSampleRate {
	case 8000, 16000, 22050, 44100, 48000:
	default:
		return fmt.Errorf("unsupported audio_sample_rate: %d", r.AudioSampleRate)
	}

	// The audio track is always mono 16-bit PCM.
	if r.AudioBitDepth != 16 {
		return fmt.Errorf("audio_bit_depth must be 16, got %d", r.AudioBitDepth)
	}

	if r.FragmentDuration <= 0 {
		return fmt.Errorf("fragment_duration must be positive")
	}

	if r.MaxPendingFragments < 1 {
		return fmt.Errorf("max_pending_fragments must be at least 1")
	}

	if r.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1")
	}

	return nil
}

func (o *OverlayConfig) Validate() error {
	if o.SwitchDebounce < 0 {
		return fmt.Errorf("switch_debounce cannot be negative")
	}

	if o.FallbackScale <= 0 {
		return fmt.Errorf("fallback_scale must be positive")
	}

	if o.FocalLength <= 0 {
		return fmt.Errorf("focal_length must be positive")
	}

	return nil
}

func (c *CameraConfig) Validate() error {
	if c.Width < 2 || c.Height < 2 {
		return fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}

	if c.DisplayRate < 1 || c.DisplayRate > 240 {
		return fmt.Errorf("display_rate must be between 1 and 240")
	}

	if c.InitialPosition != "front" && c.InitialPosition != "rear" {
		return fmt.Errorf("initial_position must be 'front' or 'rear'")
	}

	if c.SwitchGuard <= 0 {
		return fmt.Errorf("switch_guard must be positive")
	}

	if c.SwitchSettle < 0 {
		return fmt.Errorf("switch_settle cannot be negative")
	}

	if c.AudioChunkSamples < 1 {
		return fmt.Errorf("audio_chunk_samples must be positive")
	}

	if c.PoolSize < 2 {
		return fmt.Errorf("pool_size must be at least 2")
	}

	return nil
}

func (h *HandoffConfig) Validate() error {
	if !h.Enabled {
		return nil
	}

	if h.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when handoff is enabled")
	}

	if h.RedisDB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", h.RedisDB)
	}

	if h.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	if h.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	return nil
}
