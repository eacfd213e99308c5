package pattern

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/mcav/pkg/protocol"
)

func TestEngine_SetPattern(t *testing.T) {
	e := NewEngine("spectrum")
	now := time.Now()

	if !e.SetPattern("wave", now) {
		t.Error("known pattern reported unknown")
	}
	if got := e.CurrentName(); got != "wave" {
		t.Errorf("current = %q, want wave", got)
	}

	// Unknown name falls back but reports false.
	if e.SetPattern("bogus", now) {
		t.Error("unknown pattern reported known")
	}
	if got := e.CurrentName(); got != DefaultPattern {
		t.Errorf("current = %q, want %q", got, DefaultPattern)
	}
}

func TestEngine_CrossfadeEndsAfterWindow(t *testing.T) {
	e := NewEngine("spectrum")
	now := time.Now()
	st := loudState()
	cfg := DefaultConfig()

	e.Evaluate(st, cfg, now)
	e.SetPattern("ring", now)
	e.Evaluate(st, cfg, now.Add(16*time.Millisecond))
	if e.previous == nil {
		t.Fatal("outgoing pattern dropped during the fade window")
	}
	e.Evaluate(st, cfg, now.Add(crossfade+16*time.Millisecond))
	if e.previous != nil {
		t.Error("outgoing pattern retained past the fade window")
	}
}

func TestEngine_DtCapped(t *testing.T) {
	e := NewEngine("wave")
	st := loudState()
	cfg := DefaultConfig()
	now := time.Now()

	e.Evaluate(st, cfg, now)
	// A ten-second stall must behave like a single capped step, so the
	// output stays within the unit cube rather than teleporting.
	out := e.Evaluate(st, cfg, now.Add(10*time.Second))
	for _, en := range out {
		if en.Y < 0 || en.Y > 1 || math.IsNaN(en.Y) {
			t.Fatalf("y = %v after stall", en.Y)
		}
	}
	if e.Frames() != 2 {
		t.Errorf("frames = %d, want 2", e.Frames())
	}
}

func TestSmoother_DeadbandHoldsStill(t *testing.T) {
	s := NewSmoother()
	s.Apply([]protocol.Entity{{ID: "a", X: 0.5, Y: 0.5, Z: 0.5}})

	out := s.Apply([]protocol.Entity{{ID: "a", X: 0.5005, Y: 0.5, Z: 0.5}})
	if out[0].X != 0.5 {
		t.Errorf("x = %v, want deadband hold at 0.5", out[0].X)
	}
}

func TestSmoother_FastAlphaForLargeMoves(t *testing.T) {
	s := NewSmoother()
	s.Apply([]protocol.Entity{{ID: "a"}})

	// 0.1 move exceeds the fast threshold: one step covers 78 %.
	out := s.Apply([]protocol.Entity{{ID: "a", X: 0.1}})
	if math.Abs(out[0].X-0.078) > 1e-9 {
		t.Errorf("x = %v, want 0.078", out[0].X)
	}

	// 0.01 move stays below it: 48 % blend.
	s2 := NewSmoother()
	s2.Apply([]protocol.Entity{{ID: "a"}})
	out = s2.Apply([]protocol.Entity{{ID: "a", X: 0.01}})
	if math.Abs(out[0].X-0.0048) > 1e-9 {
		t.Errorf("x = %v, want 0.0048", out[0].X)
	}
}

func TestSmoother_ScaleAsymmetric(t *testing.T) {
	s := NewSmoother()
	s.Apply([]protocol.Entity{{ID: "a", Scale: 1}})

	up := s.Apply([]protocol.Entity{{ID: "a", Scale: 2}})[0].Scale
	if math.Abs(up-1.84) > 1e-9 {
		t.Errorf("rising scale = %v, want 1.84", up)
	}

	s2 := NewSmoother()
	s2.Apply([]protocol.Entity{{ID: "a", Scale: 2}})
	down := s2.Apply([]protocol.Entity{{ID: "a", Scale: 1}})[0].Scale
	if math.Abs(down-1.44) > 1e-9 {
		t.Errorf("falling scale = %v, want 1.44", down)
	}
}

func TestSmoother_RotationShortestPath(t *testing.T) {
	s := NewSmoother()
	s.Apply([]protocol.Entity{{ID: "a", Rotation: 350}})

	// 350°→10° is a +20° arc; one step covers 52 % of it.
	got := s.Apply([]protocol.Entity{{ID: "a", Rotation: 10}})[0].Rotation
	want := math.Mod(350+20*0.52, 360)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("rotation = %v, want %v", got, want)
	}
}

func TestSmoother_DropsStaleEntities(t *testing.T) {
	s := NewSmoother()
	s.Apply([]protocol.Entity{{ID: "a"}, {ID: "b"}})
	s.Apply([]protocol.Entity{{ID: "a"}})

	if _, ok := s.states["b"]; ok {
		t.Error("stale entity state retained")
	}
}

func TestBlend_FadesNewEntitiesIn(t *testing.T) {
	old := []protocol.Entity{{ID: "a", X: 0, Scale: 1}}
	cur := []protocol.Entity{{ID: "a", X: 1, Scale: 1}, {ID: "b", Scale: 1}}

	out := blend(old, cur, 0.5)
	if out[0].X != 0.5 {
		t.Errorf("matched entity x = %v, want 0.5", out[0].X)
	}
	if out[1].Scale != 0.5 {
		t.Errorf("new entity scale = %v, want fade-in 0.5", out[1].Scale)
	}
}

func TestSmoothstep(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{2, 1},
	}
	for _, tt := range tests {
		if got := smoothstep(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("smoothstep(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
