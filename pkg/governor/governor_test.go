package governor

import (
	"testing"

	"github.com/morezero/mcp-engine/pkg/protocol"
)

const governorTestPrefix = "governor:governor_test"

func TestNew_Defaults(t *testing.T) {
	g := New(Config{})
	if g.MaxActiveRequests() != 50 {
		t.Errorf("%s - MaxActiveRequests = %d, want 50", governorTestPrefix, g.MaxActiveRequests())
	}
	if g.MaxActiveBatches() != 10 {
		t.Errorf("%s - MaxActiveBatches = %d, want 10", governorTestPrefix, g.MaxActiveBatches())
	}
}

func TestTryAdmit_Ceiling(t *testing.T) {
	g := New(Config{MaxActiveRequests: 2})
	if !g.TryAdmit("1", protocol.PriorityNormal) || !g.TryAdmit("2", protocol.PriorityHigh) {
		t.Fatalf("%s - first two admissions should succeed", governorTestPrefix)
	}
	if g.TryAdmit("3", protocol.PriorityNormal) {
		t.Errorf("%s - third normal request should be refused", governorTestPrefix)
	}
	if !g.TryAdmit("4", protocol.PriorityCritical) {
		t.Errorf("%s - critical request should bypass the ceiling", governorTestPrefix)
	}
	if g.ActiveRequests() != 3 {
		t.Errorf("%s - ActiveRequests = %d, want 3", governorTestPrefix, g.ActiveRequests())
	}
	if g.Rejected() != 1 {
		t.Errorf("%s - Rejected = %d, want 1", governorTestPrefix, g.Rejected())
	}

	g.Release("1")
	g.Release("4")
	if !g.TryAdmit("5", protocol.PriorityLow) {
		t.Errorf("%s - admission should succeed after release", governorTestPrefix)
	}
}

func TestRelease_DuplicateIDs(t *testing.T) {
	g := New(Config{})
	g.TryAdmit("same", protocol.PriorityNormal)
	g.TryAdmit("same", protocol.PriorityNormal)
	g.Release("same")
	if !g.IsActive("same") {
		t.Errorf("%s - second admission should still be active", governorTestPrefix)
	}
	g.Release("same")
	if g.IsActive("same") || g.ActiveRequests() != 0 {
		t.Errorf("%s - expected empty active set", governorTestPrefix)
	}
	g.Release("same")
	if g.ActiveRequests() != 0 {
		t.Errorf("%s - releasing unknown id changed count", governorTestPrefix)
	}
}

func TestBatchCeiling(t *testing.T) {
	g := New(Config{MaxActiveBatches: 1})
	if !g.TryAdmitBatch() {
		t.Fatalf("%s - first batch should be admitted", governorTestPrefix)
	}
	if g.TryAdmitBatch() {
		t.Errorf("%s - second batch should be refused", governorTestPrefix)
	}
	g.ReleaseBatch()
	if g.ActiveBatches() != 0 {
		t.Errorf("%s - ActiveBatches = %d, want 0", governorTestPrefix, g.ActiveBatches())
	}
	g.ReleaseBatch()
	if g.ActiveBatches() != 0 {
		t.Errorf("%s - ActiveBatches went negative", governorTestPrefix)
	}
}

func TestBatchCeilingIndependentOfRequests(t *testing.T) {
	g := New(Config{MaxActiveRequests: 1, MaxActiveBatches: 1})
	g.TryAdmit("a", protocol.PriorityNormal)
	if !g.TryAdmitBatch() {
		t.Errorf("%s - batch ceiling must not depend on request ceiling", governorTestPrefix)
	}
}
