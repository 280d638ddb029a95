package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mpkai/internal/domain"
)

// CorpusConfig points at the document directory scanned at startup.
type CorpusConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model,omitempty"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeminiConfig holds configuration for the Google Generative AI API.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type"`
	Device string        `yaml:"device"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Gemini *GeminiConfig `yaml:"gemini,omitempty"`
}

// ChunkerConfig configures how pages are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type    string         `yaml:"type"`
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant  *QdrantConfig  `yaml:"qdrant,omitempty"`
}

// ChromemConfig configures the embedded chromem-go database.
// An empty Path keeps the database in memory.
type ChromemConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig holds the top-K size and the similarity floor.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// GuardConfig throttles and trips the generation backend.
// Zero values disable the corresponding guard.
type GuardConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BreakerFailures   int `yaml:"breaker_failures"`
	BreakerCooldown   int `yaml:"breaker_cooldown_secs"`
}

// GeneratorConfig selects the language model backend and its fixed sampling parameters.
type GeneratorConfig struct {
	Type        string        `yaml:"type"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	TopK        int           `yaml:"top_k"`
	NumGPU      int           `yaml:"num_gpu"`
	NumThread   int           `yaml:"num_thread"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty"`
	Guard       GuardConfig   `yaml:"guard"`
}

// PersonaConfig is the assistant's fixed role text and SOP rule list.
type PersonaConfig struct {
	Name  string   `yaml:"name"`
	Role  string   `yaml:"role"`
	Rules []string `yaml:"rules"`
}

// LanguageConfig selects the language used when a caller does not pick one.
type LanguageConfig struct {
	Default string `yaml:"default"`
}

// SummarizerConfig selects and configures the corpus digest.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// SessionConfig configures transcript export.
type SessionConfig struct {
	ExportDir    string `yaml:"export_dir"`
	ExportFormat string `yaml:"export_format"`
}

// AppConfig is the root application configuration structure.
// It is loaded once at startup and treated as read-only afterwards.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Persona     PersonaConfig     `yaml:"persona"`
	Language    LanguageConfig    `yaml:"language"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Session     SessionConfig     `yaml:"session"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/mpkai/config.yaml.
// If neither exists, it writes defaults to ~/.config/mpkai/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "tfidf", "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedder.Type)
	}
	switch c.Embedder.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("unknown embedder device: %q", c.Embedder.Device)
	}
	switch c.VectorStore.Type {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return errors.New("qdrant vector store requires vector_store.qdrant.url")
	}
	switch c.Generator.Type {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown generator: %q", c.Generator.Type)
	}
	if c.Chunker.Type != "sentence" {
		return fmt.Errorf("unknown chunker: %q", c.Chunker.Type)
	}
	if c.Summarizer.Type != "frequency" {
		return fmt.Errorf("unknown summarizer: %q", c.Summarizer.Type)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be within [-1, 1], got %v", c.Retrieval.MinSimilarity)
	}
	if _, err := domain.ParseLanguage(c.Language.Default); err != nil {
		return fmt.Errorf("language.default: %w", err)
	}
	switch c.Session.ExportFormat {
	case "txt", "xlsx":
	default:
		return fmt.Errorf("unknown session export format: %q", c.Session.ExportFormat)
	}
	return nil
}

// DefaultLanguage returns the parsed default language.
func (c *AppConfig) DefaultLanguage() domain.Language {
	l, _ := domain.ParseLanguage(c.Language.Default)
	return l
}

// GenerationParams returns the fixed sampling parameters for this deployment.
func (c *AppConfig) GenerationParams() domain.GenerationParams {
	return domain.GenerationParams{
		Model:       c.Generator.Model,
		Temperature: c.Generator.Temperature,
		TopP:        c.Generator.TopP,
		TopK:        c.Generator.TopK,
		NumGPU:      c.Generator.NumGPU,
		NumThread:   c.Generator.NumThread,
		Timeout:     time.Duration(c.Generator.TimeoutSecs) * time.Second,
	}
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mpkai", "config.yaml"), nil
}

// Default returns the configuration of the reference deployment.
func Default() *AppConfig {
	return &AppConfig{
		Corpus:   CorpusConfig{Dir: "./data", Extensions: []string{".pdf", ".txt", ".md"}},
		Chunker:  ChunkerConfig{Type: "sentence", SentencesPerChunk: 8, OverlapSentences: 1},
		Embedder: EmbedderConfig{Type: "ollama", Device: "auto", Ollama: &OllamaConfig{Host: defaultOllamaHost, Model: "bge-m3"}},
		VectorStore: VectorStoreConfig{
			Type: "memory",
		},
		Retrieval: RetrievalConfig{TopK: 5, MinSimilarity: 0.60},
		Generator: GeneratorConfig{
			Type:        "ollama",
			Model:       "MPK-AI",
			Temperature: 0.1,
			TopP:        0.85,
			TopK:        20,
			NumGPU:      35,
			NumThread:   8,
			TimeoutSecs: 600,
			Ollama:      &OllamaConfig{Host: defaultOllamaHost},
			Guard:       GuardConfig{BreakerFailures: 3, BreakerCooldown: 60},
		},
		Persona:    PersonaConfig{Name: "MPK-AI"},
		Language:   LanguageConfig{Default: "id"},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
		Telemetry:  TelemetryConfig{ServiceName: "mpkai", SampleRatio: 1},
		Session:    SessionConfig{ExportDir: ".", ExportFormat: "txt"},
	}
}

const defaultOllamaHost = "http://127.0.0.1:11434"

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "./data"
	}
	if len(cfg.Corpus.Extensions) == 0 {
		cfg.Corpus.Extensions = []string{".pdf", ".txt", ".md"}
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 8
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Embedder.Device == "" {
		cfg.Embedder.Device = "auto"
	}
	switch cfg.Embedder.Type {
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		if cfg.Embedder.Ollama.Host == "" {
			cfg.Embedder.Ollama.Host = defaultOllamaHost
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "bge-m3"
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI)
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "chromem" && cfg.VectorStore.Chromem == nil {
		cfg.VectorStore.Chromem = &ChromemConfig{Path: "./index.db"}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "mpkai"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "MPK-AI"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 600
	}
	switch cfg.Generator.Type {
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		if cfg.Generator.Ollama.Host == "" {
			cfg.Generator.Ollama.Host = defaultOllamaHost
		}
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI)
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
	case "gemini":
		if cfg.Generator.Gemini == nil {
			cfg.Generator.Gemini = &GeminiConfig{}
		}
		if cfg.Generator.Gemini.APIKeyEnv == "" {
			cfg.Generator.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Generator.Gemini.Model == "" {
			cfg.Generator.Gemini.Model = "gemini-2.0-flash"
		}
	}
	if cfg.Persona.Name == "" {
		cfg.Persona.Name = "MPK-AI"
	}
	if cfg.Language.Default == "" {
		cfg.Language.Default = "id"
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "mpkai"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
	if cfg.Session.ExportDir == "" {
		cfg.Session.ExportDir = "."
	}
	if cfg.Session.ExportFormat == "" {
		cfg.Session.ExportFormat = "txt"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}
