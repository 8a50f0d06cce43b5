package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Microphone    MicrophoneConfig    `yaml:"microphone"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Chat          ChatConfig          `yaml:"chat"`
	Speech        SpeechConfig        `yaml:"speech"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
	RateLimit int    `yaml:"rate_limit"`
}

type MicrophoneConfig struct {
	Device         string `yaml:"device"`
	File           string `yaml:"file"`
	SampleRate     int    `yaml:"sample_rate"`
	CaptureTimeout string `yaml:"capture_timeout"`
}

type TranscriptionConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Language     string `yaml:"language"`
	PollInterval string `yaml:"poll_interval"`
	MaxPolls     int    `yaml:"max_polls"`
}

type ChatConfig struct {
	Provider     string `yaml:"provider"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`
}

type SpeechConfig struct {
	Engine     string           `yaml:"engine"`
	Espeak     EspeakConfig     `yaml:"espeak"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
}

type EspeakConfig struct {
	Binary string `yaml:"binary"`
	Voice  string `yaml:"voice"`
	Speed  int    `yaml:"speed"`
}

type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	Model   string `yaml:"model"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Title   string `yaml:"title"`
	Enabled bool   `yaml:"enabled"`
}

// ProxyConfig routes outbound API calls through a SOCKS5 proxy when
// SocksAddr is set.
type ProxyConfig struct {
	SocksAddr string `yaml:"socks_addr"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
}

type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 30
	}
	if c.Microphone.Device == "" {
		c.Microphone.Device = "browser"
	}
	if c.Microphone.SampleRate == 0 {
		c.Microphone.SampleRate = 16000
	}
	if c.Microphone.CaptureTimeout == "" {
		c.Microphone.CaptureTimeout = "30s"
	}
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = "https://api.assemblyai.com/v2"
	}
	if c.Transcription.PollInterval == "" {
		c.Transcription.PollInterval = "3s"
	}
	if c.Transcription.MaxPolls == 0 {
		c.Transcription.MaxPolls = 200
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = "openai"
	}
	if c.Chat.Model == "" {
		switch c.Chat.Provider {
		case "anthropic":
			c.Chat.Model = "claude-sonnet-4-20250514"
		case "gemini":
			c.Chat.Model = "gemini-2.0-flash"
		default:
			c.Chat.Model = "gpt-4"
		}
	}
	if c.Speech.Engine == "" {
		c.Speech.Engine = "browser"
	}
	if c.Speech.Espeak.Binary == "" {
		c.Speech.Espeak.Binary = "espeak-ng"
	}
	if c.Pushover.Title == "" {
		c.Pushover.Title = "Voice Assistant"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "assistant"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Transcription.APIKey == "" {
		errs = append(errs, errors.New("transcription.api_key is required"))
	}
	if c.Chat.APIKey == "" {
		errs = append(errs, errors.New("chat.api_key is required"))
	}
	if c.Transcription.MaxPolls < 0 {
		errs = append(errs, errors.New("transcription.max_polls must not be negative"))
	}
	if d, err := time.ParseDuration(c.Transcription.PollInterval); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("transcription.poll_interval %q is not a positive duration", c.Transcription.PollInterval))
	}
	if _, err := time.ParseDuration(c.Microphone.CaptureTimeout); err != nil {
		errs = append(errs, fmt.Errorf("microphone.capture_timeout %q: %w", c.Microphone.CaptureTimeout, err))
	}

	switch c.Chat.Provider {
	case "openai", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown chat.provider %q", c.Chat.Provider))
	}

	switch c.Microphone.Device {
	case "browser", "portaudio":
	case "file":
		if c.Microphone.File == "" {
			errs = append(errs, errors.New("microphone.file is required for the file device"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown microphone.device %q", c.Microphone.Device))
	}

	switch c.Speech.Engine {
	case "browser", "espeak", "none":
	case "elevenlabs":
		if c.Speech.ElevenLabs.APIKey == "" || c.Speech.ElevenLabs.VoiceID == "" {
			errs = append(errs, errors.New("speech.elevenlabs.api_key and voice_id are required for the elevenlabs engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown speech.engine %q", c.Speech.Engine))
	}

	switch c.Log.Format {
	case "text", "json", "tint":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (c TranscriptionConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

func (c MicrophoneConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.CaptureTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
