package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordsEncoded("flat", 10)
	m.RecordsEncoded("flat", 5)
	m.RecordError("section")
	m.CacheLookup("hit")
	m.CacheLookup("miss")
	m.CacheLookup("miss")
	m.SplitSizes("flat_level_all", 72, 8, 20)
	m.Materialized("miss", 250*time.Millisecond)
	m.BatchServed("train")

	if got := testutil.ToFloat64(m.RecordsEncodedTotal.WithLabelValues("flat")); got != 15 {
		t.Errorf("records encoded = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.RecordErrorsTotal.WithLabelValues("section")); got != 1 {
		t.Errorf("record errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SplitRecords.WithLabelValues("flat_level_all", "valid")); got != 8 {
		t.Errorf("valid size = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.BatchesServedTotal.WithLabelValues("train")); got != 1 {
		t.Errorf("batches = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordsEncoded("flat", 1)
	m.RecordError("flat")
	m.CacheLookup("hit")
	m.SplitSizes("k", 1, 1, 1)
	m.Materialized("hit", time.Second)
	m.BatchServed("test")
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheLookup("hit")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `taxoprep_cache_lookups_total{result="hit"} 1`) {
		t.Errorf("scrape output missing cache counter:\n%s", body)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.CacheLookup("hit")
	if got := testutil.ToFloat64(b.CacheLookupsTotal.WithLabelValues("hit")); got != 0 {
		t.Errorf("second registry saw %v hits", got)
	}
}
