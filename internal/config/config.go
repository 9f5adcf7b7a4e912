// Package config provides configuration loading for taxrag.
//
// Values are resolved from hardcoded defaults, then an optional YAML or TOML
// file, then TAXRAG_* environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete taxrag configuration.
type Config struct {
	Data        DataConfig        `koanf:"data"`
	Crawler     CrawlerConfig     `koanf:"crawler"`
	Chunker     ChunkerConfig     `koanf:"chunker"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Index       IndexConfig       `koanf:"index"`
	LLM         LLMConfig         `koanf:"llm"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// DataConfig locates the on-disk artifacts shared by the pipeline stages.
type DataConfig struct {
	Dir string `koanf:"dir"`
}

// RawDir holds page_NNN.txt files and metadata.json.
func (d DataConfig) RawDir() string { return filepath.Join(d.Dir, "raw") }

// ProcessedDir holds chunks.json.
func (d DataConfig) ProcessedDir() string { return filepath.Join(d.Dir, "processed") }

// IndexDir holds the embedded vector database and the active generation pointer.
func (d DataConfig) IndexDir() string { return filepath.Join(d.Dir, "chroma_db") }

// CrawlerConfig holds crawler configuration.
type CrawlerConfig struct {
	BaseURL   string   `koanf:"base_url"`
	MaxPages  int      `koanf:"max_pages"`
	Timeout   Duration `koanf:"timeout"`
	Delay     Duration `koanf:"delay"`
	UserAgent string   `koanf:"user_agent"`
}

// ChunkerConfig holds chunk sizing in characters.
type ChunkerConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider     string `koanf:"provider"` // tei, fastembed or openai
	Model        string `koanf:"model"`
	BaseURL      string `koanf:"base_url"`
	APIKey       Secret `koanf:"api_key"`
	CacheDir     string `koanf:"cache_dir"`
	Dimension    int    `koanf:"dimension"`
	ONNXVersion  string `koanf:"onnx_version"`
	ShowProgress bool   `koanf:"show_progress"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem or qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go database.
// An empty Path falls back to DataConfig.IndexDir.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	UseTLS         bool   `koanf:"use_tls"`
	APIKey         Secret `koanf:"api_key"`
	MaxMessageSize int    `koanf:"max_message_size"`
}

// IndexConfig configures the collection layout and batching.
type IndexConfig struct {
	Collection string `koanf:"collection"`
	BatchSize  int    `koanf:"batch_size"`
}

// LLMConfig configures the answer generation backend.
type LLMConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
	APIKey      Secret   `koanf:"api_key"`
	APIKeyEnv   string   `koanf:"api_key_env"`
	DotenvPath  string   `koanf:"dotenv_path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	DefaultResults  int      `koanf:"default_results"`
	MinResults      int      `koanf:"min_results"`
	MaxResults      int      `koanf:"max_results"`
}

// LoggingConfig is the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Data: DataConfig{Dir: "data"},
		Crawler: CrawlerConfig{
			BaseURL:   "https://infohub.rs.ge/ka",
			MaxPages:  50,
			Timeout:   Duration(10 * time.Second),
			Delay:     Duration(time.Second),
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Chunker: ChunkerConfig{Size: 800, Overlap: 200},
		Embeddings: EmbeddingsConfig{
			Provider:    "tei",
			Model:       "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2",
			BaseURL:     "http://localhost:8080",
			Dimension:   384,
			ONNXVersion: "1.23.0",
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem:  ChromemConfig{Compress: true},
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				MaxMessageSize: 50 * 1024 * 1024,
			},
		},
		Index: IndexConfig{Collection: "tax_documents", BatchSize: 32},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			MaxTokens:   1000,
			Timeout:     Duration(60 * time.Second),
			APIKeyEnv:   "GROQ_API_KEY",
			DotenvPath:  ".env",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            10000,
			ShutdownTimeout: Duration(10 * time.Second),
			DefaultResults:  5,
			MinResults:      3,
			MaxResults:      10,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "taxrag",
			SampleRate:     1.0,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("%w: data.dir is required", ErrInvalidConfig)
	}
	if err := validateHTTPURL("crawler.base_url", c.Crawler.BaseURL); err != nil {
		return err
	}
	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("%w: crawler.max_pages must be positive, got %d", ErrInvalidConfig, c.Crawler.MaxPages)
	}
	if c.Crawler.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: crawler.timeout must be positive", ErrInvalidConfig)
	}
	if c.Chunker.Size < 1 {
		return fmt.Errorf("%w: chunker.size must be positive, got %d", ErrInvalidConfig, c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 {
		return fmt.Errorf("%w: chunker.overlap cannot be negative, got %d", ErrInvalidConfig, c.Chunker.Overlap)
	}

	switch c.Embeddings.Provider {
	case "tei", "openai":
		if err := validateHTTPURL("embeddings.base_url", c.Embeddings.BaseURL); err != nil {
			return err
		}
	case "fastembed":
	default:
		return fmt.Errorf("%w: unknown embeddings.provider %q (want tei, fastembed or openai)", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("%w: embeddings.model is required", ErrInvalidConfig)
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("%w: vectorstore.qdrant.host is required", ErrInvalidConfig)
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: invalid vectorstore.qdrant.port %d", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("%w: unknown vectorstore.provider %q (want chromem or qdrant)", ErrInvalidConfig, c.VectorStore.Provider)
	}

	if c.Index.Collection == "" {
		return fmt.Errorf("%w: index.collection is required", ErrInvalidConfig)
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("%w: index.batch_size must be positive, got %d", ErrInvalidConfig, c.Index.BatchSize)
	}

	if err := validateHTTPURL("llm.base_url", c.LLM.BaseURL); err != nil {
		return err
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.model is required", ErrInvalidConfig)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("%w: llm.temperature must be in [0,2], got %v", ErrInvalidConfig, c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("%w: llm.max_tokens must be positive", ErrInvalidConfig)
	}
	if c.LLM.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", ErrInvalidConfig)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MinResults < 1 || c.Server.MinResults > c.Server.MaxResults {
		return fmt.Errorf("%w: server result bounds [%d,%d] are invalid", ErrInvalidConfig, c.Server.MinResults, c.Server.MaxResults)
	}
	if c.Server.DefaultResults < c.Server.MinResults || c.Server.DefaultResults > c.Server.MaxResults {
		return fmt.Errorf("%w: server.default_results %d outside [%d,%d]", ErrInvalidConfig,
			c.Server.DefaultResults, c.Server.MinResults, c.Server.MaxResults)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging.format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("%w: telemetry.endpoint is required when telemetry is enabled", ErrInvalidConfig)
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s must use http or https, got %q", ErrInvalidConfig, field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %s has no host", ErrInvalidConfig, field)
	}
	return nil
}
