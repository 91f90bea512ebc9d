package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Preprocess.ExtraLength != 5 || cfg.Preprocess.Seed != 42 {
		t.Errorf("preprocess defaults = %+v", cfg.Preprocess)
	}
	if got := cfg.DatasetPath(); got != filepath.Join("datasets", "small_product_tokopedia.csv") {
		t.Errorf("DatasetPath = %s", got)
	}
	if got := cfg.HierarchyPath(); got != filepath.Join("datasets", "small_hierarchy.yaml") {
		t.Errorf("HierarchyPath = %s", got)
	}
	if got := cfg.ManifestPath(); got != filepath.Join("datasets", "manifest.db") {
		t.Errorf("ManifestPath = %s", got)
	}
	if !strings.HasSuffix(cfg.DatasetURL(), "/0.1/small_product_tokopedia.csv") {
		t.Errorf("DatasetURL = %s", cfg.DatasetURL())
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxoprep.yaml")
	content := `dataset:
  path: /data/products.csv
  textColumn: title
  download: false
preprocess:
  outputDir: /data/out
  seed: 7
  workers: 2
  skipSingletons: true
loader:
  batchSize: 64
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.Path != "/data/products.csv" || cfg.Dataset.TextColumn != "title" || cfg.Dataset.Download {
		t.Errorf("dataset = %+v", cfg.Dataset)
	}
	if cfg.Preprocess.Seed != 7 || cfg.Preprocess.Workers != 2 || !cfg.Preprocess.SkipSingletons {
		t.Errorf("preprocess = %+v", cfg.Preprocess)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Preprocess.ExtraLength != 5 || cfg.Loader.Workers != 4 || cfg.Dataset.Delimiter != " > " {
		t.Errorf("defaults lost: %+v %+v", cfg.Preprocess, cfg.Loader)
	}
	if cfg.Loader.BatchSize != 64 {
		t.Errorf("BatchSize = %d", cfg.Loader.BatchSize)
	}
	if cfg.OutputDir() != "/data/out" {
		t.Errorf("OutputDir = %s", cfg.OutputDir())
	}
	if cfg.HierarchyPath() != filepath.Join("/data/out", "products_hierarchy.yaml") {
		t.Errorf("HierarchyPath = %s", cfg.HierarchyPath())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("dataset: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TAXOPREP_DATASET_NAME", "large")
	t.Setenv("TAXOPREP_SEED", "1234")
	t.Setenv("TAXOPREP_WORKERS", "3")
	t.Setenv("TAXOPREP_BATCH_SIZE", "16")
	t.Setenv("TAXOPREP_LOG_LEVEL", "warn")
	t.Setenv("TAXOPREP_METRICS_ADDR", ":9999")
	t.Setenv("TAXOPREP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TAXOPREP_DATASET_DOWNLOAD", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.Name != "large" || cfg.Dataset.Download {
		t.Errorf("dataset = %+v", cfg.Dataset)
	}
	if cfg.Preprocess.Seed != 1234 || cfg.Preprocess.Workers != 3 {
		t.Errorf("preprocess = %+v", cfg.Preprocess)
	}
	if cfg.Loader.BatchSize != 16 || cfg.Logging.Level != "warn" {
		t.Errorf("loader/logging = %+v %+v", cfg.Loader, cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9999" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if !cfg.Kafka.Enabled || !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}

	// Unparseable numbers are ignored.
	t.Setenv("TAXOPREP_SEED", "not-a-number")
	cfg, _ = Load("")
	if cfg.Preprocess.Seed != 42 {
		t.Errorf("Seed = %d, want default 42", cfg.Preprocess.Seed)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"no dataset":       func(c *Config) { c.Dataset.Name = ""; c.Dataset.Path = "" },
		"empty delimiter":  func(c *Config) { c.Dataset.Delimiter = "" },
		"tiny extra":       func(c *Config) { c.Preprocess.ExtraLength = 1 },
		"no workers":       func(c *Config) { c.Preprocess.Workers = 0 },
		"unknown stemmer":  func(c *Config) { c.Cleaner.Stemmer = "porter2" },
		"no vocab":         func(c *Config) { c.Tokenizer.VocabPath = "" },
		"zero batch":       func(c *Config) { c.Loader.BatchSize = 0 },
		"bad driver":       func(c *Config) { c.Manifest.Driver = "postgres" },
		"kafka w/o topic":  func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" },
		"zero loader pool": func(c *Config) { c.Loader.Workers = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadStoplist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stoplist.yaml")
	content := `terms:
  - yang
  - dan
  - untuk
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sl, err := LoadStoplist(path)
	if err != nil {
		t.Fatalf("Failed to load stoplist: %v", err)
	}
	if !reflect.DeepEqual(sl.Terms, []string{"yang", "dan", "untuk"}) {
		t.Errorf("Terms = %v", sl.Terms)
	}
}
