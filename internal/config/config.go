// Package config loads settings from defaults, an optional YAML file, .env and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderMock       = "mock"
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderGoogle     = "google"

	DefaultConfigPath = "config.yaml"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Captioner  CaptionerConfig  `yaml:"captioner"`
	TTS        TTSConfig        `yaml:"tts"`
	STT        STTConfig        `yaml:"stt"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Google     GoogleConfig     `yaml:"google"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RateLimit       int           `yaml:"rate_limit"` // requests per minute per IP on stage endpoints
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SessionConfig struct {
	Secret          string        `yaml:"secret"`
	CookieName      string        `yaml:"cookie_name"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SecureCookie    bool          `yaml:"secure_cookie"`
}

type CaptionerConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Prompt   string `yaml:"prompt"`
}

type TTSConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
	Language string `yaml:"language"`
}

type STTConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	MockTranscript string `yaml:"mock_transcript"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

// Default returns a configuration that runs fully offline with mock providers
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			MaxUploadBytes:  10 << 20,
			RateLimit:       30,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CookieName:      "lensa_session",
			TTL:             30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Captioner: CaptionerConfig{Provider: ProviderMock},
		TTS:       TTSConfig{Provider: ProviderMock},
		STT:       STTConfig{Provider: ProviderMock, Language: "en-US"},
	}
}

// Load builds the configuration. A missing file at path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	// .env is optional, real environment variables win over it
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Path returns the config file location from LENSA_CONFIG or the default
func Path() string {
	if p := os.Getenv("LENSA_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Session.Secret, "LENSA_SESSION_SECRET")
	setString(&cfg.Captioner.Provider, "LENSA_CAPTIONER")
	setString(&cfg.TTS.Provider, "LENSA_TTS")
	setString(&cfg.STT.Provider, "LENSA_STT")
	setString(&cfg.STT.Language, "LENSA_LANGUAGE")
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.ElevenLabs.APIKey, "ELEVEN_LABS_API_KEY")
	setString(&cfg.ElevenLabs.VoiceID, "ELEVEN_LABS_VOICE_ID")
	setString(&cfg.Google.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	if v := os.Getenv("LENSA_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid LENSA_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Server.MaxUploadBytes = n
	}
	if v := os.Getenv("LENSA_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LENSA_SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate rejects unknown providers and providers missing their credentials
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Captioner.Provider) {
	case ProviderMock:
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("captioner gemini requires GEMINI_API_KEY"))
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("captioner openai requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown captioner provider %q", c.Captioner.Provider))
	}

	switch strings.ToLower(c.TTS.Provider) {
	case ProviderMock:
	case ProviderElevenLabs:
		if c.ElevenLabs.APIKey == "" {
			errs = append(errs, errors.New("tts elevenlabs requires ELEVEN_LABS_API_KEY"))
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("tts openai requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tts provider %q", c.TTS.Provider))
	}

	switch strings.ToLower(c.STT.Provider) {
	case ProviderMock, ProviderGoogle:
		// google falls back to application default credentials
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("stt openai requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown stt provider %q", c.STT.Provider))
	}

	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}

	return errors.Join(errs...)
}
