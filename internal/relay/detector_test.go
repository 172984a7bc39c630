package relay

import (
	"context"
	"errors"
	"testing"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

type scriptedProblems struct {
	responses []any // []entity.Problem or error
}

func (s *scriptedProblems) Problems(context.Context) ([]entity.Problem, error) {
	if len(s.responses) == 0 {
		return nil, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.([]entity.Problem), nil
}

type recordingHandler struct {
	batches [][]entity.MonitoringEvent
}

func (h *recordingHandler) HandleEvents(_ context.Context, events []entity.MonitoringEvent) {
	h.batches = append(h.batches, events)
}

func problem(id string, triggerID int64) entity.Problem {
	return entity.Problem{ExternalID: id, TriggerID: triggerID, OccurredAt: 1000}
}

func TestDetectorTransitions(t *testing.T) {
	t.Parallel()
	src := &scriptedProblems{responses: []any{
		[]entity.Problem{problem("a", 1), problem("b", 2), problem("c", 3)}, // baseline
		[]entity.Problem{problem("b", 2), problem("c", 3), problem("d", 4)},
	}}
	h := &recordingHandler{}
	d := NewDetector(src, h, logx.Nop())
	ctx := context.Background()

	if err := d.Tick(ctx); err != nil {
		t.Fatalf("baseline tick: %v", err)
	}
	if len(h.batches) != 0 {
		t.Fatalf("baseline tick dispatched %d batches", len(h.batches))
	}

	if err := d.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(h.batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(h.batches))
	}
	events := h.batches[0]
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	// Raised events come before resolved ones.
	if events[0].ExternalID != "d" || events[0].Resolved() {
		t.Fatalf("first event = %+v, want raised d", events[0])
	}
	if events[1].ExternalID != "a" || !events[1].Resolved() {
		t.Fatalf("second event = %+v, want resolved a", events[1])
	}
	if events[1].TriggerID != 1 {
		t.Fatalf("resolved event must carry the previous snapshot's record, got trigger %d", events[1].TriggerID)
	}
}

func TestDetectorSteadyStateIsQuiet(t *testing.T) {
	t.Parallel()
	open := []entity.Problem{problem("e1", 1)}
	src := &scriptedProblems{responses: []any{open, open, open}}
	h := &recordingHandler{}
	d := NewDetector(src, h, logx.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := d.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if len(h.batches) != 0 {
		t.Fatalf("unchanged snapshots dispatched events: %+v", h.batches)
	}
}

func TestDetectorKeepsBaselineOnFetchFailure(t *testing.T) {
	t.Parallel()
	src := &scriptedProblems{responses: []any{
		[]entity.Problem{problem("a", 1)}, // baseline
		errors.New("zabbix down"),
		[]entity.Problem{problem("a", 1)}, // back to normal: nothing changed
	}}
	h := &recordingHandler{}
	d := NewDetector(src, h, logx.Nop())
	ctx := context.Background()

	if err := d.Tick(ctx); err != nil {
		t.Fatalf("baseline tick: %v", err)
	}
	if err := d.Tick(ctx); err == nil {
		t.Fatal("expected fetch error")
	}
	// The failed tick must not have advanced the baseline, so the recovery
	// tick sees no transitions (in particular no false "resolved" storm).
	if err := d.Tick(ctx); err != nil {
		t.Fatalf("recovery tick: %v", err)
	}
	if len(h.batches) != 0 {
		t.Fatalf("transient failure produced events: %+v", h.batches)
	}
}

func TestDetectorDuplicateIDsDedup(t *testing.T) {
	t.Parallel()
	src := &scriptedProblems{responses: []any{
		[]entity.Problem{},
		[]entity.Problem{problem("x", 1), problem("x", 1)},
	}}
	h := &recordingHandler{}
	d := NewDetector(src, h, logx.Nop())
	ctx := context.Background()

	if err := d.Tick(ctx); err != nil {
		t.Fatalf("baseline: %v", err)
	}
	if err := d.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(h.batches) != 1 || len(h.batches[0]) != 1 {
		t.Fatalf("duplicate snapshot entries must raise once, got %+v", h.batches)
	}
}
