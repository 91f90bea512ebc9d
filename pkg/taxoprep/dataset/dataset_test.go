package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const sampleCSV = `title,price,category
"Sepatu Sneakers Pria, Murah",120000,Fashion > Sepatu > Sneakers
Kaos Polos Hitam,35000,Fashion > Atasan > Kaos
Samsung Galaxy A54 5G,5999000,Elektronik > Handphone > Android
`

func TestReadDefaults(t *testing.T) {
	ds, err := Read(strings.NewReader(sampleCSV), Options{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ds.Len())
	}
	wantTexts := []string{"Sepatu Sneakers Pria, Murah", "Kaos Polos Hitam", "Samsung Galaxy A54 5G"}
	if !reflect.DeepEqual(ds.Texts(), wantTexts) {
		t.Errorf("Texts = %q", ds.Texts())
	}
	if got := ds.Categories()[2]; got != "Elektronik > Handphone > Android" {
		t.Errorf("category[2] = %q", got)
	}
	if ds.MaxWords() != 4 {
		t.Errorf("MaxWords = %d, want 4", ds.MaxWords())
	}
}

func TestReadNamedColumns(t *testing.T) {
	ds, err := Read(strings.NewReader(sampleCSV), Options{TextColumn: "price", CategoryColumn: "Title"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ds.Records[1].Text != "35000" || ds.Records[1].Category != "Kaos Polos Hitam" {
		t.Errorf("record 1 = %+v", ds.Records[1])
	}

	if _, err := Read(strings.NewReader(sampleCSV), Options{TextColumn: "description"}); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestReadErrors(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"single column": "title\nfoo\n",
		"ragged row":    "title,category\nfoo,a > b\nbar\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(input), Options{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := Load(path, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Len() != 3 {
		t.Errorf("Len = %d", ds.Len())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestURLFor(t *testing.T) {
	url, err := URLFor("small")
	if err != nil {
		t.Fatalf("URLFor: %v", err)
	}
	if !strings.Contains(url, "/0.1/small_product_tokopedia.csv") {
		t.Errorf("url = %s", url)
	}
	if _, err := URLFor("medium"); err == nil {
		t.Error("expected error for unknown dataset")
	}
}

func fastFetcher() *Fetcher {
	return &Fetcher{Retry: RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "datasets", FileName("small"))
	downloaded, err := fastFetcher().Fetch(context.Background(), srv.URL, path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !downloaded {
		t.Error("expected a download")
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
	data, _ := os.ReadFile(path)
	if string(data) != sampleCSV {
		t.Errorf("downloaded content mismatch")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}
}

func TestFetchSkipsExisting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "small.csv")
	os.WriteFile(path, []byte(sampleCSV), 0644)

	downloaded, err := fastFetcher().Fetch(context.Background(), srv.URL, path)
	if err != nil || downloaded {
		t.Errorf("Fetch = %v, %v; want false, nil", downloaded, err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times", calls.Load())
	}
}

func TestFetchGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "small.csv")
	if _, err := fastFetcher().Fetch(context.Background(), srv.URL, path); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("partial dataset file left behind")
	}
}
