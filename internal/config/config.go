package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete loader configuration
type Config struct {
	Corpus  CorpusConfig  `yaml:"corpus"`
	Labels  LabelsConfig  `yaml:"labels"`
	Filter  FilterConfig  `yaml:"filter"`
	Window  WindowConfig  `yaml:"window"`
	Stream  StreamConfig  `yaml:"stream"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// CorpusConfig describes where the audio corpus lives and how speaker
// labels are derived from the directory layout
type CorpusConfig struct {
	Roots        []string `yaml:"roots"`
	Extension    string   `yaml:"extension"`
	SpeakerLevel int      `yaml:"speaker_level"` // path depth defining the speaker, 0 = single speaker
	CachePath    string   `yaml:"cache_path"`    // optional catalog cache, empty disables caching
}

// LabelsConfig points at the optional phone/word alignment files
type LabelsConfig struct {
	PhonePath string `yaml:"phone_path"`
	WordPath  string `yaml:"word_path"`
}

// FilterConfig selects a subset of the catalog by basename lists
type FilterConfig struct {
	Paths      []string `yaml:"paths"`
	Percentage int      `yaml:"percentage"` // 0 disables percentage subsampling
	TotalNum   int      `yaml:"total_num"`  // 0 disables count subsampling
}

// WindowConfig contains training window and batching parameters
type WindowConfig struct {
	SizeWindow   int    `yaml:"size_window"`   // samples per training window
	BatchSize    int    `yaml:"batch_size"`    // windows per batch
	Sampler      string `yaml:"sampler"`       // uniform, sequential, samespeaker, samesequence
	RandomOffset bool   `yaml:"random_offset"` // random window phase per package
	Seed         int64  `yaml:"seed"`          // sampler randomness seed
}

// StreamConfig bounds package sizes and worker parallelism
type StreamConfig struct {
	MaxPackageFrames int64 `yaml:"max_package_frames"`
	ProbeWorkers     int   `yaml:"probe_workers"`
	LoadWorkers      int   `yaml:"load_workers"`
}

// HTTPConfig contains the stats/metrics HTTP server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in values that may be omitted from the file
func (c *Config) applyDefaults() {
	if c.Corpus.Extension == "" {
		c.Corpus.Extension = ".wav"
	}
	if c.Stream.ProbeWorkers == 0 {
		c.Stream.ProbeWorkers = 8
	}
	if c.Stream.LoadWorkers == 0 {
		c.Stream.LoadWorkers = 8
	}
	if c.Window.Sampler == "" {
		c.Window.Sampler = "uniform"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Corpus.Validate(); err != nil {
		return fmt.Errorf("corpus config: %w", err)
	}

	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter config: %w", err)
	}

	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("window config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates corpus configuration
func (c *CorpusConfig) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("at least one corpus root is required")
	}

	if c.Extension == "" || c.Extension[0] != '.' {
		return fmt.Errorf("extension must start with a dot, got %q", c.Extension)
	}

	if c.SpeakerLevel < 0 {
		return fmt.Errorf("speaker_level cannot be negative, got %d", c.SpeakerLevel)
	}

	return nil
}

// Validate validates filter configuration
func (f *FilterConfig) Validate() error {
	if f.Percentage < 0 || f.Percentage >= 100 {
		return fmt.Errorf("percentage must be in [0, 100), got %d", f.Percentage)
	}

	if f.TotalNum < 0 {
		return fmt.Errorf("total_num cannot be negative, got %d", f.TotalNum)
	}

	if f.Percentage > 0 && f.TotalNum > 0 {
		return fmt.Errorf("percentage and total_num are mutually exclusive")
	}

	if (f.Percentage > 0 || f.TotalNum > 0) && len(f.Paths) == 0 {
		return fmt.Errorf("subsampling requires at least one filter file")
	}

	return nil
}

// Validate validates window configuration
func (w *WindowConfig) Validate() error {
	if w.SizeWindow < 1 {
		return fmt.Errorf("size_window must be positive, got %d", w.SizeWindow)
	}

	if w.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", w.BatchSize)
	}

	switch w.Sampler {
	case "uniform", "sequential", "samespeaker", "samesequence":
	default:
		return fmt.Errorf("sampler must be one of [uniform, sequential, samespeaker, samesequence], got %q", w.Sampler)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.MaxPackageFrames < 1 {
		return fmt.Errorf("max_package_frames must be positive, got %d", s.MaxPackageFrames)
	}

	if s.ProbeWorkers < 1 {
		return fmt.Errorf("probe_workers must be at least 1, got %d", s.ProbeWorkers)
	}

	if s.LoadWorkers < 1 {
		return fmt.Errorf("load_workers must be at least 1, got %d", s.LoadWorkers)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got %q", l.Format)
	}

	return nil
}
