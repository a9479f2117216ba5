package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は収集結果から指定名のメトリクスファミリーを探す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// counterWithLabel はラベル値が一致するカウンタの値を返す。
func counterWithLabel(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestRecordFetch_CountsByResultAndObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetch(FetchResultOK, 100*time.Millisecond)
	c.RecordFetch(FetchResultOK, 200*time.Millisecond)
	c.RecordFetch(FetchResultNetwork, time.Second)

	mf := findMetricFamily(t, reg, "readlater_fetch_total")
	if got := counterWithLabel(mf, "result", FetchResultOK); got != 2 {
		t.Errorf("fetch_total{result=ok} = %v, want 2", got)
	}
	if got := counterWithLabel(mf, "result", FetchResultNetwork); got != 1 {
		t.Errorf("fetch_total{result=network_error} = %v, want 1", got)
	}

	hist := findMetricFamily(t, reg, "readlater_fetch_latency_seconds").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 3 {
		t.Errorf("latency sample count = %d, want 3", hist.GetSampleCount())
	}
	if sum := hist.GetSampleSum(); sum < 1.29 || sum > 1.31 {
		t.Errorf("latency sample sum = %v, want 1.3", sum)
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	mf := findMetricFamily(t, reg, "readlater_fetch_http_status_total")
	if got := counterWithLabel(mf, "status_code", "200"); got != 2 {
		t.Errorf("status 200 = %v, want 2", got)
	}
	if got := counterWithLabel(mf, "status_code", "404"); got != 1 {
		t.Errorf("status 404 = %v, want 1", got)
	}
}

func TestRecordEntriesAdded_CountsBySource(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEntriesAdded(SourceSingle, 1)
	c.RecordEntriesAdded(SourceImport, 12)

	mf := findMetricFamily(t, reg, "readlater_entries_added_total")
	if got := counterWithLabel(mf, "source", SourceSingle); got != 1 {
		t.Errorf("entries_added{source=single} = %v, want 1", got)
	}
	if got := counterWithLabel(mf, "source", SourceImport); got != 12 {
		t.Errorf("entries_added{source=import} = %v, want 12", got)
	}
}

func TestPlainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDuplicateResolved()
	c.RecordDuplicateResolved()
	c.RecordDuplicateCleanupFailure()
	c.RecordBacklogProcessed(5)
	c.RecordTagsCollected(3)

	tests := []struct {
		name string
		want float64
	}{
		{"readlater_duplicates_resolved_total", 2},
		{"readlater_duplicate_cleanup_failures_total", 1},
		{"readlater_backlog_processed_total", 5},
		{"readlater_tags_collected_total", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mf := findMetricFamily(t, reg, tt.name)
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリのCollectorが干渉しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordDuplicateResolved()

	mf := findMetricFamily(t, reg2, "readlater_duplicates_resolved_total")
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("reg2 duplicates_resolved_total = %v, want 0", got)
	}
}

func TestNop_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordFetch(FetchResultOK, time.Second)
	c.RecordHTTPStatus(500)
	c.RecordEntriesAdded(SourceImport, 3)
	c.RecordDuplicateResolved()
	c.RecordDuplicateCleanupFailure()
	c.RecordBacklogProcessed(1)
	c.RecordTagsCollected(1)
}
