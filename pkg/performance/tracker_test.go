package performance

import (
	"math"
	"sync"
	"testing"
	"time"
)

const trackerTestPrefix = "performance:tracker_test"

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStats_UnknownMethod(t *testing.T) {
	s := NewTracker().Stats("missing")
	if s.Method != "missing" || s.TotalRequests != 0 || s.AverageDurationMs != 0 || s.SuccessRatePercent != 0 {
		t.Errorf("%s - Stats(missing) = %+v", trackerTestPrefix, s)
	}
}

func TestRecord_AverageAndSuccessRate(t *testing.T) {
	tr := NewTracker()
	tr.Record("echo", 10*time.Millisecond, true)
	tr.Record("echo", 30*time.Millisecond, true)
	tr.Record("echo", 20*time.Millisecond, false)
	tr.Record("echo", 0, true)

	s := tr.Stats("echo")
	if s.TotalRequests != 4 || s.SuccessCount != 3 || s.FailureCount != 1 {
		t.Errorf("%s - counts = %+v", trackerTestPrefix, s)
	}
	if !approx(s.AverageDurationMs, 15) {
		t.Errorf("%s - AverageDurationMs = %v, want 15", trackerTestPrefix, s.AverageDurationMs)
	}
	if !approx(s.SuccessRatePercent, 75) {
		t.Errorf("%s - SuccessRatePercent = %v, want 75", trackerTestPrefix, s.SuccessRatePercent)
	}
}

func TestRecordCacheHit(t *testing.T) {
	tr := NewTracker()
	tr.Record("echo", 8*time.Millisecond, true)
	tr.RecordCacheHit("echo")

	s := tr.Stats("echo")
	if s.TotalRequests != 2 || s.SuccessCount != 2 || s.CacheHits != 1 {
		t.Errorf("%s - counts = %+v", trackerTestPrefix, s)
	}
	if !approx(s.AverageDurationMs, 4) {
		t.Errorf("%s - AverageDurationMs = %v, want 4", trackerTestPrefix, s.AverageDurationMs)
	}
}

func TestAll_Sorted(t *testing.T) {
	tr := NewTracker()
	tr.Record("zeta", time.Millisecond, true)
	tr.Record("alpha", time.Millisecond, false)

	all := tr.All()
	if len(all) != 2 || all[0].Method != "alpha" || all[1].Method != "zeta" {
		t.Errorf("%s - All = %+v", trackerTestPrefix, all)
	}
}

func TestSnapshotRestore(t *testing.T) {
	src := NewTracker()
	src.Record("echo", 5*time.Millisecond, true)
	src.RecordCacheHit("echo")

	dst := NewTracker()
	dst.Record("echo", 5*time.Millisecond, false)
	dst.Restore(src.Snapshot())
	dst.Restore([]Record{{Method: ""}})

	s := dst.Stats("echo")
	if s.TotalRequests != 3 || s.SuccessCount != 2 || s.FailureCount != 1 || s.CacheHits != 1 {
		t.Errorf("%s - restored counts = %+v", trackerTestPrefix, s)
	}
	if len(dst.Snapshot()) != 1 {
		t.Errorf("%s - empty method should be skipped on restore", trackerTestPrefix)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("m", time.Millisecond, true)
		}()
	}
	wg.Wait()
	if s := tr.Stats("m"); s.TotalRequests != 50 {
		t.Errorf("%s - TotalRequests = %d, want 50", trackerTestPrefix, s.TotalRequests)
	}
}
