package sim

import (
	"context"
	"errors"
	"math"
	"testing"
)

// x[k+1] = x[k] + u[k]
type testPlant struct{}

func (p *testPlant) Step(x State, u Control) State { return State{x[0] + u[0]} }
func (p *testPlant) StateDim() int                 { return 1 }
func (p *testPlant) ControlDim() int               { return 1 }

// Drives the state halfway to the first reference sample.
type testController struct {
	horizon int
	failAt  int
	calls   int
	windows [][]State
}

var errSolve = errors.New("solve failed")

func (c *testController) Compute(x State, window []State) (Control, error) {
	defer func() { c.calls++ }()
	if c.failAt >= 0 && c.calls == c.failAt {
		return nil, errSolve
	}
	c.windows = append(c.windows, window)
	target := 0.0
	if window != nil {
		target = window[0][0]
	}
	return Control{0.5 * (target - x[0])}, nil
}

func (c *testController) Horizon() int { return c.horizon }

func newTestController() *testController { return &testController{horizon: 2, failAt: -1} }

func TestSimulatorRun(t *testing.T) {
	ctrl := newTestController()
	sim := New(&testPlant{}, ctrl)

	tr, err := sim.Run(context.Background(), State{8}, 10, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(tr.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(tr.States))
	}
	if len(tr.Inputs) != 10 {
		t.Errorf("expected 10 inputs, got %d", len(tr.Inputs))
	}

	expected := 8 * math.Pow(0.5, 10)
	if got := tr.Final()[0]; math.Abs(got-expected) > 1e-12 {
		t.Errorf("expected final state %.6f, got %.6f", expected, got)
	}
	if tr.States[0][0] != 8 {
		t.Errorf("first state should be x0, got %v", tr.States[0])
	}

	if phase, step := sim.Phase(); phase != PhaseCompleted || step != 10 {
		t.Errorf("expected completed at 10, got %v at %d", phase, step)
	}

	for _, w := range ctrl.windows {
		if w != nil {
			t.Fatal("expected nil windows without a reference")
		}
	}
}

func TestSimulatorLength(t *testing.T) {
	for _, steps := range []int{1, 2, 7, 50} {
		tr, err := New(&testPlant{}, newTestController()).Run(context.Background(), State{1}, steps, nil)
		if err != nil {
			t.Fatalf("steps=%d: run failed: %v", steps, err)
		}
		if len(tr.States) != steps+1 || len(tr.Inputs) != steps || tr.Steps() != steps {
			t.Errorf("steps=%d: got %d states and %d inputs", steps, len(tr.States), len(tr.Inputs))
		}
	}
}

func TestSimulatorReferenceWindows(t *testing.T) {
	ctrl := newTestController()
	ref := []State{{1}, {2}, {3}}

	tr, err := New(&testPlant{}, ctrl).Run(context.Background(), State{0}, 4, ref)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tr.Steps() != 4 {
		t.Fatalf("expected 4 steps, got %d", tr.Steps())
	}

	want := [][]float64{
		{1, 2, 3},
		{2, 3, 3},
		{3, 3, 3},
		{3, 3, 3},
	}
	for step, w := range ctrl.windows {
		if len(w) != 3 {
			t.Fatalf("step %d: window has %d samples, want 3", step, len(w))
		}
		for i := range w {
			if w[i][0] != want[step][i] {
				t.Errorf("step %d: window[%d] = %v, want %v", step, i, w[i][0], want[step][i])
			}
		}
	}
}

func TestSimulatorAbortsOnControllerFailure(t *testing.T) {
	ctrl := newTestController()
	ctrl.failAt = 3
	sim := New(&testPlant{}, ctrl)

	tr, err := sim.Run(context.Background(), State{4}, 10, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if stepErr.Step != 3 {
		t.Errorf("expected failure at step 3, got %d", stepErr.Step)
	}
	if !errors.Is(err, errSolve) {
		t.Error("StepError should unwrap to the controller error")
	}

	if len(tr.States) != 4 || len(tr.Inputs) != 3 {
		t.Errorf("expected partial trajectory of 4 states and 3 inputs, got %d and %d", len(tr.States), len(tr.Inputs))
	}
	if phase, step := sim.Phase(); phase != PhaseFailed || step != 3 {
		t.Errorf("expected failed at 3, got %v at %d", phase, step)
	}
}

func TestSimulatorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, err := New(&testPlant{}, newTestController()).Run(ctx, State{1}, 5, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(tr.States) != 1 || len(tr.Inputs) != 0 {
		t.Errorf("expected only x0 recorded, got %d states", len(tr.States))
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&testPlant{}, newTestController())

	tests := []struct {
		name  string
		x0    State
		steps int
		ref   []State
		want  error
	}{
		{"zero steps", State{1}, 0, nil, ErrInvalidSteps},
		{"negative steps", State{1}, -3, nil, ErrInvalidSteps},
		{"wrong x0", State{1, 2}, 5, nil, ErrDimensionMismatch},
		{"empty reference", State{1}, 5, []State{}, ErrEmptyReference},
		{"wrong reference", State{1}, 5, []State{{1, 2}}, ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.x0, tt.steps, tt.ref)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if phase, _ := sim.Phase(); phase != PhaseIdle {
		t.Errorf("validation errors should leave the simulator idle, got %v", phase)
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (m *testMetric) Name() string { return "test" }
func (m *testMetric) Observe(x State, u Control, t int) {
	m.count++
	m.sum += x[0]
}
func (m *testMetric) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}
func (m *testMetric) Reset() {
	m.count = 0
	m.sum = 0
}

type countingObserver struct{ steps []int }

func (o *countingObserver) OnStep(x State, u Control, t int) { o.steps = append(o.steps, t) }

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&testPlant{}, newTestController())

	metric := &testMetric{}
	obs := &countingObserver{}
	sim.AddMetric(metric)
	sim.AddObserver(obs)

	tr, err := sim.Run(context.Background(), State{1}, 10, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := tr.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 10 {
		t.Errorf("expected 10 observations, got %d", metric.count)
	}
	if len(obs.steps) != 10 || obs.steps[9] != 9 {
		t.Errorf("observer saw steps %v", obs.steps)
	}
}

func TestSimulatorPartialMetricsOnAbort(t *testing.T) {
	ctrl := newTestController()
	ctrl.failAt = 3
	sim := New(&testPlant{}, ctrl)
	metric := &testMetric{}
	sim.AddMetric(metric)

	tr, err := sim.Run(context.Background(), State{4}, 10, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// States 4, 2, 1 were observed before the failing step.
	got, ok := tr.Metrics["test"]
	if !ok {
		t.Fatal("metric missing from aborted run")
	}
	if want := 7.0 / 3; math.Abs(got-want) > 1e-12 {
		t.Errorf("metric = %v, want %v", got, want)
	}
}

// stepFailure learns its step from the simulator.
type stepFailure struct{ step int }

func (e *stepFailure) Error() string    { return "step failure" }
func (e *stepFailure) SetStep(step int) { e.step = step }

type stepFailingController struct {
	testController
	err *stepFailure
}

func (c *stepFailingController) Compute(x State, window []State) (Control, error) {
	if c.calls == c.failAt {
		return nil, c.err
	}
	return c.testController.Compute(x, window)
}

func TestSimulatorRecordsStepOnError(t *testing.T) {
	ctrl := &stepFailingController{
		testController: testController{horizon: 1, failAt: 5},
		err:            &stepFailure{step: -1},
	}

	_, err := New(&testPlant{}, ctrl).Run(context.Background(), State{1}, 10, nil)
	var failure *stepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *stepFailure, got %v", err)
	}
	if failure.step != 5 {
		t.Errorf("recorded step %d, want 5", failure.step)
	}
}

func TestEnsemble(t *testing.T) {
	ens := NewEnsemble(&testPlant{},
		func() (Controller, error) { return newTestController(), nil },
		func() []Metric { return []Metric{&testMetric{}} },
		2)

	x0s := []State{{1}, {2}, {4}}
	results, err := ens.Run(context.Background(), x0s, 3, nil)
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	for i, tr := range results {
		if tr.Steps() != 3 {
			t.Errorf("run %d: expected 3 steps, got %d", i, tr.Steps())
		}
		if want := x0s[i][0] / 8; math.Abs(tr.Final()[0]-want) > 1e-12 {
			t.Errorf("run %d: final %v, want %v", i, tr.Final()[0], want)
		}
		if _, ok := tr.Metrics["test"]; !ok {
			t.Errorf("run %d: metric missing", i)
		}
	}
}

func TestEnsembleFailure(t *testing.T) {
	ens := NewEnsemble(&testPlant{},
		func() (Controller, error) {
			c := newTestController()
			c.failAt = 0
			return c, nil
		}, nil, 0)

	_, err := ens.Run(context.Background(), []State{{1}, {2}}, 3, nil)
	if !errors.Is(err, errSolve) {
		t.Errorf("expected solve error, got %v", err)
	}
}
