package readaloud

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the read-aloud settings. Values come from the YAML
// config file with environment-variable overrides.
type Config struct {
	// EndpointURL is the synthesis endpoint that receives the
	// form-encoded POST per segment.
	EndpointURL string `yaml:"endpoint_url" env:"READALOUD_ENDPOINT_URL"`

	// TextLanguage is sent as the request's text_language field.
	TextLanguage string `yaml:"text_language" env:"READALOUD_TEXT_LANGUAGE"`

	// SpeechRate is the integer rate setting. The endpoint receives
	// rate/10.0 as its speed parameter and the player uses the same
	// value as its speed multiplier.
	SpeechRate int `yaml:"speech_rate" env:"READALOUD_SPEECH_RATE"`

	// Voice is the ID of the selected voice from Voices.
	Voice string `yaml:"voice" env:"READALOUD_VOICE"`

	// Voices is the configured voice list.
	Voices []Voice `yaml:"voices"`

	// CacheDir is the audio cache directory. Empty means the
	// platform's user cache directory.
	CacheDir string `yaml:"cache_dir" env:"READALOUD_CACHE_DIR"`

	// MaxCacheEntries bounds the cache; trimming keeps the newest
	// entries by modification time.
	MaxCacheEntries int `yaml:"max_cache_entries" env:"READALOUD_MAX_CACHE_ENTRIES"`

	// RequestTimeout bounds each synthesis call.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"READALOUD_REQUEST_TIMEOUT"`

	// PollInterval is the playback position polling period.
	PollInterval time.Duration `yaml:"poll_interval" env:"READALOUD_POLL_INTERVAL"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		TextLanguage:    "zh",
		SpeechRate:      10,
		MaxCacheEntries: 30,
		RequestTimeout:  30 * time.Second,
		PollInterval:    100 * time.Millisecond,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("endpoint_url must be set")
	}
	if c.SpeechRate <= 0 {
		return fmt.Errorf("speech_rate must be positive, got %d", c.SpeechRate)
	}
	if c.MaxCacheEntries <= 0 {
		return fmt.Errorf("max_cache_entries must be positive, got %d", c.MaxCacheEntries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.Voice != "" && c.findVoice(c.Voice) == nil {
		return fmt.Errorf("voice %q not found in configured voices", c.Voice)
	}
	return nil
}

func (c *Config) findVoice(id string) *Voice {
	for i := range c.Voices {
		if c.Voices[i].ID == id {
			return &c.Voices[i]
		}
	}
	return nil
}

// Settings wraps a Config for concurrent readers and live updates from
// the config-file watcher. It implements VoiceSource.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSettings returns settings seeded from cfg.
func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg}
}

// Update replaces the settings wholesale. Invalid configs are
// rejected.
func (s *Settings) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Config returns a copy of the current configuration.
func (s *Settings) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// CurrentVoice returns the selected voice, or false when none is
// selected.
func (s *Settings) CurrentVoice() (Voice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v := s.cfg.findVoice(s.cfg.Voice); v != nil {
		return *v, true
	}
	return Voice{}, false
}

// SetVoice selects a voice by ID.
func (s *Settings) SetVoice(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.findVoice(id) == nil {
		return fmt.Errorf("voice %q not found in configured voices", id)
	}
	s.cfg.Voice = id
	return nil
}

// EndpointURL returns the synthesis endpoint.
func (s *Settings) EndpointURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.EndpointURL
}

// SpeechRate returns the current speech rate.
func (s *Settings) SpeechRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.SpeechRate
}

// SetSpeechRate updates the speech rate.
func (s *Settings) SetSpeechRate(rate int) {
	s.mu.Lock()
	if rate > 0 {
		s.cfg.SpeechRate = rate
	}
	s.mu.Unlock()
}

// TextLanguage returns the language tag sent with each request.
func (s *Settings) TextLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.TextLanguage
}
