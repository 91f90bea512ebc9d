package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ReleaseURL is the download location of the published product datasets.
const ReleaseURL = "https://github.com/bintangfjulio/product_categories_classification/releases/download/%s/%s_product_tokopedia.csv"

var releaseVersions = map[string]string{
	"small": "0.1",
	"large": "0.0",
}

// URLFor returns the download URL of a published dataset by name.
func URLFor(name string) (string, error) {
	v, ok := releaseVersions[name]
	if !ok {
		return "", fmt.Errorf("no published dataset named %q", name)
	}
	return fmt.Sprintf(ReleaseURL, v, name), nil
}

// FileName returns the local CSV file name of a published dataset.
func FileName(name string) string {
	return name + "_product_tokopedia.csv"
}

// RetryConfig controls download retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Fetcher downloads dataset files.
type Fetcher struct {
	Client *http.Client
	Retry  RetryConfig
}

// Fetch downloads url to path with the default client unless path exists.
// It reports whether a download happened.
func Fetch(ctx context.Context, url, path string) (bool, error) {
	return (&Fetcher{}).Fetch(ctx, url, path)
}

// Fetch downloads url to path unless path already exists. The body is
// written to a .tmp file and renamed once complete.
func (f *Fetcher) Fetch(ctx context.Context, url, path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating dataset directory: %w", err)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := slog.Default().With("component", "dataset-fetch", "url", url)
	start := time.Now()

	var size int64
	err := retry(ctx, "download dataset", f.Retry, func() error {
		n, err := download(ctx, client, url, path)
		size = n
		return err
	})
	if err != nil {
		return false, err
	}
	logger.Info("dataset downloaded", "path", path, "bytes", size, "duration", time.Since(start))
	return true, nil
}

func download(ctx context.Context, client *http.Client, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("requesting dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("requesting dataset: status %s", resp.Status)
	}

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp dataset file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("writing dataset: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing dataset file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming dataset file: %w", err)
	}
	return n, nil
}

func retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	defaults := defaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaults.Multiplier
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = defaults.JitterFraction
	}
	logger := slog.Default().With("component", "retry", "operation", name)
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		delay := backoff(attempt, cfg)
		logger.Warn("operation failed, retrying", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", lastErr, "next_delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	d += d * cfg.JitterFraction * (2*rand.Float64() - 1)
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if d < 0 {
		d = float64(cfg.InitialDelay)
	}
	return time.Duration(d)
}
