// Package config loads preprocessing configuration from YAML with TAXOPREP_*
// environment overrides, and builds the text pipeline components it names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/taxoprep/pkg/taxoprep/dataset"
	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/taxonomy"
	"github.com/cognicore/taxoprep/pkg/taxoprep/textclean"
)

// Config is the top-level configuration.
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Cleaner    CleanerConfig    `yaml:"cleaner"`
	Tokenizer  TokenizerConfig  `yaml:"tokenizer"`
	Loader     LoaderConfig     `yaml:"loader"`
	Manifest   ManifestConfig   `yaml:"manifest"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

// DatasetConfig locates the labeled CSV.
type DatasetConfig struct {
	Name           string `yaml:"name"`
	Dir            string `yaml:"dir"`
	Path           string `yaml:"path"`
	URL            string `yaml:"url"`
	Download       bool   `yaml:"download"`
	TextColumn     string `yaml:"textColumn"`
	CategoryColumn string `yaml:"categoryColumn"`
	Delimiter      string `yaml:"delimiter"`
}

// PreprocessConfig controls tensorization and splitting.
type PreprocessConfig struct {
	OutputDir      string `yaml:"outputDir"`
	ExtraLength    int    `yaml:"extraLength"`
	Seed           uint64 `yaml:"seed"`
	Workers        int    `yaml:"workers"`
	SkipSingletons bool   `yaml:"skipSingletons"`
}

// CleanerConfig selects the stopword list and stemmer. ExtraStopwords and
// KeepWords adjust the loaded list without replacing it.
type CleanerConfig struct {
	StoplistPath   string   `yaml:"stoplistPath"`
	ExtraStopwords []string `yaml:"extraStopwords"`
	KeepWords      []string `yaml:"keepWords"`
	Stemmer        string   `yaml:"stemmer"`
}

// TokenizerConfig points at a WordPiece vocab.txt.
type TokenizerConfig struct {
	VocabPath string `yaml:"vocabPath"`
}

// LoaderConfig controls batch iteration.
type LoaderConfig struct {
	BatchSize int    `yaml:"batchSize"`
	Workers   int    `yaml:"workers"`
	Seed      uint64 `yaml:"seed"`
}

// ManifestConfig selects the cache manifest store. Driver is "sqlite" or "memory".
type ManifestConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// KafkaConfig controls the split-ready notification.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Name:      "small",
			Dir:       "datasets",
			Download:  true,
			Delimiter: taxonomy.DefaultDelimiter,
		},
		Preprocess: PreprocessConfig{
			ExtraLength: 5,
			Seed:        42,
			Workers:     runtime.NumCPU(),
		},
		Cleaner: CleanerConfig{
			Stemmer: "indonesian",
		},
		Tokenizer: TokenizerConfig{
			VocabPath: "vocab.txt",
		},
		Loader: LoaderConfig{
			BatchSize: 32,
			Workers:   4,
			Seed:      42,
		},
		Manifest: ManifestConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "taxoprep.split-ready",
		},
	}
}

// applyEnvOverrides reads TAXOPREP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TAXOPREP_DATASET_NAME"); v != "" {
		cfg.Dataset.Name = v
	}
	if v := os.Getenv("TAXOPREP_DATASET_DIR"); v != "" {
		cfg.Dataset.Dir = v
	}
	if v := os.Getenv("TAXOPREP_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("TAXOPREP_DATASET_URL"); v != "" {
		cfg.Dataset.URL = v
	}
	if v := os.Getenv("TAXOPREP_DATASET_DOWNLOAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dataset.Download = b
		}
	}
	if v := os.Getenv("TAXOPREP_OUTPUT_DIR"); v != "" {
		cfg.Preprocess.OutputDir = v
	}
	if v := os.Getenv("TAXOPREP_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Preprocess.Seed = seed
		}
	}
	if v := os.Getenv("TAXOPREP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Preprocess.Workers = n
		}
	}
	if v := os.Getenv("TAXOPREP_STOPLIST_PATH"); v != "" {
		cfg.Cleaner.StoplistPath = v
	}
	if v := os.Getenv("TAXOPREP_STEMMER"); v != "" {
		cfg.Cleaner.Stemmer = v
	}
	if v := os.Getenv("TAXOPREP_VOCAB_PATH"); v != "" {
		cfg.Tokenizer.VocabPath = v
	}
	if v := os.Getenv("TAXOPREP_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loader.BatchSize = n
		}
	}
	if v := os.Getenv("TAXOPREP_MANIFEST_DRIVER"); v != "" {
		cfg.Manifest.Driver = v
	}
	if v := os.Getenv("TAXOPREP_MANIFEST_PATH"); v != "" {
		cfg.Manifest.Path = v
	}
	if v := os.Getenv("TAXOPREP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TAXOPREP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TAXOPREP_METRICS_ADDR"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("TAXOPREP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TAXOPREP_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var problems []string
	if c.DatasetPath() == "" {
		problems = append(problems, "dataset.path or dataset.name is required")
	}
	if c.Dataset.Delimiter == "" {
		problems = append(problems, "dataset.delimiter must not be empty")
	}
	if c.Preprocess.ExtraLength < 2 {
		problems = append(problems, "preprocess.extraLength must leave room for [CLS] and [SEP] (>= 2)")
	}
	if c.Preprocess.Workers < 1 {
		problems = append(problems, "preprocess.workers must be positive")
	}
	if _, err := textclean.StemmerByName(c.Cleaner.Stemmer); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Tokenizer.VocabPath == "" {
		problems = append(problems, "tokenizer.vocabPath is required")
	}
	if c.Loader.BatchSize < 1 {
		problems = append(problems, "loader.batchSize must be positive")
	}
	if c.Loader.Workers < 1 {
		problems = append(problems, "loader.workers must be positive")
	}
	switch c.Manifest.Driver {
	case "sqlite", "memory":
	default:
		problems = append(problems, fmt.Sprintf("manifest.driver %q must be sqlite or memory", c.Manifest.Driver))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		problems = append(problems, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// DatasetPath returns the CSV location: dataset.path, or the published file
// name for dataset.name under dataset.dir.
func (c *Config) DatasetPath() string {
	if c.Dataset.Path != "" {
		return c.Dataset.Path
	}
	if c.Dataset.Name == "" {
		return ""
	}
	return filepath.Join(c.Dataset.Dir, dataset.FileName(c.Dataset.Name))
}

// DatasetURL returns the download URL, or "" when none is known.
func (c *Config) DatasetURL() string {
	if c.Dataset.URL != "" {
		return c.Dataset.URL
	}
	url, err := dataset.URLFor(c.Dataset.Name)
	if err != nil {
		return ""
	}
	return url
}

// OutputDir returns where artifacts are written; the dataset directory by default.
func (c *Config) OutputDir() string {
	if c.Preprocess.OutputDir != "" {
		return c.Preprocess.OutputDir
	}
	if c.Dataset.Path != "" {
		return filepath.Dir(c.Dataset.Path)
	}
	return c.Dataset.Dir
}

// ManifestPath returns the SQLite manifest location.
func (c *Config) ManifestPath() string {
	if c.Manifest.Path != "" {
		return c.Manifest.Path
	}
	return filepath.Join(c.OutputDir(), "manifest.db")
}

// HierarchyPath returns where the taxonomy hierarchy file is written.
func (c *Config) HierarchyPath() string {
	name := c.Dataset.Name
	if c.Dataset.Path != "" {
		name = strings.TrimSuffix(filepath.Base(c.Dataset.Path), filepath.Ext(c.Dataset.Path))
	}
	return filepath.Join(c.OutputDir(), name+"_hierarchy.yaml")
}

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}
