package fallback

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"docbreak/internal/models"
)

const taskX models.Task = "x"

func testRegistry() *models.Registry {
	return models.New(models.Tiers{
		Primary:   map[models.Task][]string{taskX: {"A", "B"}},
		Secondary: map[models.Task][]string{taskX: {"C"}},
		Fallback:  map[models.Task][]string{taskX: {"D"}},
		Legacy:    map[models.Task]string{taskX: "L"},
	}).WithEnv(func(string) string { return "" })
}

var errBoom = errors.New("boom")

func failing(calls *[]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, model string) (string, error) {
		*calls = append(*calls, model)
		return "", errBoom
	}
}

// ========== Execute ==========

func TestExecute_FirstModelSucceeds(t *testing.T) {
	o := New(testRegistry(), nil, nil)
	got, err := Execute(context.Background(), o, taskX, "", 3, func(_ context.Context, m string) (string, error) {
		return "answer from " + m, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer from A" {
		t.Errorf("got = %q, want %q", got, "answer from A")
	}
	if p := o.State().Performance(taskX)["A"]; p.SuccessCount != 1 || p.LastUsed.IsZero() {
		t.Errorf("performance = %+v", p)
	}
}

func TestExecute_TriesMaxRetriesModelsInOrder(t *testing.T) {
	for _, tt := range []struct {
		maxRetries int
		want       []string
	}{
		{1, []string{"A"}},
		{0, []string{"A"}},
		{3, []string{"A", "B", "C"}},
		{5, []string{"A", "B", "C", "D", "L"}},
		{50, []string{"A", "B", "C", "D", "L"}},
	} {
		t.Run(fmt.Sprintf("max=%d", tt.maxRetries), func(t *testing.T) {
			o := New(testRegistry(), nil, nil)
			var calls []string
			_, err := Execute(context.Background(), o, taskX, "A", tt.maxRetries, failing(&calls))

			var ex *ExhaustedError
			if !errors.As(err, &ex) {
				t.Fatalf("err = %v, want *ExhaustedError", err)
			}
			if !reflect.DeepEqual(calls, tt.want) {
				t.Errorf("calls = %v, want %v", calls, tt.want)
			}
			if !reflect.DeepEqual(ex.Tried, tt.want) {
				t.Errorf("Tried = %v, want %v", ex.Tried, tt.want)
			}
			if !errors.Is(err, errBoom) {
				t.Errorf("last error not wrapped: %v", err)
			}
			if ex.Task != taskX {
				t.Errorf("Task = %q", ex.Task)
			}
		})
	}
}

func TestExecute_RecoversOnLaterModel(t *testing.T) {
	o := New(testRegistry(), nil, nil)
	got, err := Execute(context.Background(), o, taskX, "A", 5, func(_ context.Context, m string) (int, error) {
		if m == "C" {
			return 42, nil
		}
		return 0, errBoom
	})
	if err != nil || got != 42 {
		t.Fatalf("got = %d, %v; want 42", got, err)
	}
	if !reflect.DeepEqual(o.State().Failed(taskX), []string{"A", "B"}) {
		t.Errorf("failed = %v, want [A B]", o.State().Failed(taskX))
	}
}

func TestExecute_SkipsLifetimeFailures(t *testing.T) {
	o := New(testRegistry(), nil, nil)
	o.State().RecordFailure(taskX, "B")

	var calls []string
	_, _ = Execute(context.Background(), o, taskX, "A", 3, failing(&calls))
	if want := []string{"A", "C", "D"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestExecute_SuccessClearsFailure(t *testing.T) {
	o := New(testRegistry(), nil, nil)
	o.State().RecordFailure(taskX, "A")
	_, err := Execute(context.Background(), o, taskX, "A", 1, func(context.Context, string) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.State().IsFailed(taskX, "A") {
		t.Error("A still marked failed after success")
	}
	p := o.State().Performance(taskX)["A"]
	if p.SuccessCount != 1 || p.FailureCount != 1 {
		t.Errorf("performance = %+v", p)
	}
}

func TestExecute_CancelledContextStops(t *testing.T) {
	o := New(testRegistry(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	_, err := Execute(ctx, o, taskX, "A", 5, func(_ context.Context, m string) (string, error) {
		calls = append(calls, m)
		cancel()
		return "", errBoom
	})
	if len(calls) != 1 {
		t.Errorf("calls = %v, want one attempt", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled inside", err)
	}
}

func TestExecute_ConcurrentDocuments(t *testing.T) {
	o := New(testRegistry(), nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := models.Task(fmt.Sprintf("t%d", i%3))
			_, _ = Execute(context.Background(), o, task, "", 2, func(_ context.Context, m string) (string, error) {
				if i%2 == 0 {
					return "", errBoom
				}
				return m, nil
			})
		}(i)
	}
	wg.Wait()
	if len(o.State().Snapshot()) != 3 {
		t.Errorf("snapshot tasks = %d, want 3", len(o.State().Snapshot()))
	}
}

// ========== State ==========

func TestState_RecordFailureIdempotentSet(t *testing.T) {
	s := NewState()
	s.RecordFailure(taskX, "A")
	s.RecordFailure(taskX, "A")
	if got := s.Failed(taskX); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("failed = %v, want [A]", got)
	}
	if got := s.Performance(taskX)["A"].FailureCount; got != 2 {
		t.Errorf("failure count = %d, want 2", got)
	}
}

func TestState_BestPerforming(t *testing.T) {
	s := NewState()
	if _, ok := s.BestPerforming(taskX); ok {
		t.Error("expected no best model on empty state")
	}
	s.RecordFailure(taskX, "A")
	s.RecordSuccess(taskX, "A") // 1/2
	s.RecordSuccess(taskX, "B")
	s.RecordSuccess(taskX, "B") // 2/2
	s.RecordSuccess(taskX, "C") // 1/1
	s.RecordFailure(taskX, "D") // never succeeded
	if got, _ := s.BestPerforming(taskX); got != "B" {
		t.Errorf("best = %q, want B", got)
	}
}

func TestState_Reset(t *testing.T) {
	s := NewState()
	s.RecordFailure(taskX, "A")
	s.RecordFailure("y", "A")
	s.Reset(taskX)
	if len(s.Failed(taskX)) != 0 {
		t.Error("Reset did not clear task")
	}
	if len(s.Failed("y")) != 1 {
		t.Error("Reset cleared another task")
	}
	s.ResetAll()
	if len(s.Snapshot()) != 0 {
		t.Error("ResetAll left state behind")
	}
}
