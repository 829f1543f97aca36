package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/experiment"
)

func bowl(_ context.Context, p map[string]float64) (float64, error) {
	return (p["a"]-1)*(p["a"]-1) + (p["b"]+2)*(p["b"]+2), nil
}

func TestGridSearchFindsMinimum(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{
		Linspace(-2, 2, 5),
		Linspace(-3, 1, 5),
	})

	best, err := g.Search(context.Background(), bowl)
	if err != nil {
		t.Fatal(err)
	}
	if best.Params["a"] != 1 || best.Params["b"] != -2 {
		t.Errorf("expected (1, -2), got %v", best.Params)
	}
	if best.Value != 0 {
		t.Errorf("expected 0, got %f", best.Value)
	}
	if best.Trials != 25 || best.Failed != 0 {
		t.Errorf("expected 25 trials and no failures, got %d/%d", best.Trials, best.Failed)
	}
}

func TestGridSearchSkipsFailures(t *testing.T) {
	boom := errors.New("diverged")
	g := NewGridSearch([]string{"a"}, [][]float64{{0, 1, 2}})

	best, err := g.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		if p["a"] == 1 {
			return 0, boom
		}
		return p["a"], nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if best.Params["a"] != 0 || best.Failed != 1 {
		t.Errorf("unexpected result %+v", best)
	}

	_, err = g.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped failure, got %v", err)
	}
}

func TestGridSearchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGridSearch([]string{"a"}, [][]float64{{1}}).Search(ctx, bowl)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGridSearchMismatchedRanges(t *testing.T) {
	if _, err := NewGridSearch([]string{"a", "b"}, [][]float64{{1}}).Search(context.Background(), bowl); err == nil {
		t.Error("expected error for mismatched ranges")
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 1, 5)
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}
	if Linspace(0, 1, 0) != nil {
		t.Error("expected nil for n = 0")
	}
	if got := Linspace(3, 4, 1); len(got) != 1 || got[0] != 3 {
		t.Errorf("unexpected single point %v", got)
	}
}

func TestApply(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := Apply(cfg, map[string]float64{"kp": 0.3, "kw": 1.1}); err != nil {
		t.Fatal(err)
	}
	if cfg.Gains.Kp != 0.3 || cfg.Gains.Kw != 1.1 {
		t.Errorf("gains not applied: %+v", cfg.Gains)
	}
	if err := Apply(cfg, map[string]float64{"ki": 1}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestExperimentObjective(t *testing.T) {
	base := config.DefaultConfig()
	obj := ExperimentObjective(base, experiment.NewRegistry(), "time_to_goal")

	val, err := obj(context.Background(), map[string]float64{"kp": base.Gains.Kp})
	if err != nil {
		t.Fatal(err)
	}
	if val <= 0 || val > base.Duration {
		t.Errorf("default gains should reach the goal in time, got %.3f", val)
	}

	if _, err := obj(context.Background(), map[string]float64{"dmin": -1}); err == nil {
		t.Error("expected invalid configuration to fail")
	}
	if base.Dmin != config.DefaultConfig().Dmin {
		t.Error("objective must not modify the base configuration")
	}
}
