package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRebuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRebuild(2*time.Second, nil, 5, 2)
	m.ObserveRebuild(time.Second, errors.New("locked"), 0, 0)

	if got := testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("rebuilds ok = %v", got)
	}
	if got := testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("rebuilds error = %v", got)
	}
	if got := testutil.ToFloat64(m.LastRebuildLinks.WithLabelValues("high")); got != 5 {
		t.Fatalf("links high = %v", got)
	}
	if got := testutil.ToFloat64(m.LastRebuildLinks.WithLabelValues("medium")); got != 2 {
		t.Fatalf("links medium = %v", got)
	}

	n, err := testutil.GatherAndCount(reg, "licenselink_linking_last_rebuild_links")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("last_rebuild_links series = %d, want 2", n)
	}
	if n, _ := testutil.GatherAndCount(reg, "licenselink_linking_links"); n != 0 {
		t.Fatalf("licenselink_linking_links still exported")
	}
}

func TestObserveCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLinkOne("linked")
	m.ObserveLinkOne("linked")
	m.ObserveExcluded("malformed", 3)
	m.ObserveExcluded("malformed", 0)
	m.ObserveEventReceived()
	m.ObserveEventPublished(nil)

	if got := testutil.ToFloat64(m.LinkOneTotal.WithLabelValues("linked")); got != 2 {
		t.Fatalf("link_one linked = %v", got)
	}
	if got := testutil.ToFloat64(m.ExcludedRecords.WithLabelValues("malformed")); got != 3 {
		t.Fatalf("excluded malformed = %v", got)
	}
	if got := testutil.ToFloat64(m.EventsReceived); got != 1 {
		t.Fatalf("events received = %v", got)
	}
	if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("ok")); got != 1 {
		t.Fatalf("events published = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRebuild(time.Second, nil, 1, 1)
	m.ObserveLinkOne("linked")
	m.ObserveExcluded("malformed", 1)
	m.ObserveEventReceived()
	m.ObserveEventPublished(nil)
}
