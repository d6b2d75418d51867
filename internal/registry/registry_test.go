package registry

import (
	"testing"

	"github.com/reflexcore/ingestcore/internal/model"
)

func TestGetOrCreateDefaults(t *testing.T) {
	r := New()
	rec := r.GetOrCreate("AAPL")
	if rec.Mode != model.ModeCold {
		t.Fatalf("expected default mode COLD, got %s", rec.Mode)
	}
	if rec.Snapshot != (model.Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", rec.Snapshot)
	}
}

func TestGetOrCreateIsStable(t *testing.T) {
	r := New()
	a := r.GetOrCreate("AAPL")
	a.Mode = model.ModeHot
	b := r.GetOrCreate("AAPL")
	if b.Mode != model.ModeHot {
		t.Fatalf("expected same record to persist, got mode %s", b.Mode)
	}
}

func TestSetModeCreatesIfMissing(t *testing.T) {
	r := New()
	r.SetMode("MSFT", model.ModeWarm)
	if r.GetOrCreate("MSFT").Mode != model.ModeWarm {
		t.Fatalf("expected WARM")
	}
}

func TestModesSnapshotIsACopy(t *testing.T) {
	r := New()
	r.SetMode("AAPL", model.ModeHot)
	modes := r.Modes()
	modes["AAPL"] = model.ModeCold
	if r.GetOrCreate("AAPL").Mode != model.ModeHot {
		t.Fatalf("mutating returned map leaked into registry")
	}
}
