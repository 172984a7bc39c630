// Package relay turns monitoring problem snapshots into notifications: the
// detector diffs successive snapshots into raised/resolved transition
// events, the dispatcher fans each event out to subscribed sinks, and the
// service answers on-demand subscription and problem queries.
package relay

import (
	"context"
	"time"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

// ProblemSource supplies the currently-open problem snapshot. Never cached
// beyond one cycle.
type ProblemSource interface {
	Problems(ctx context.Context) ([]entity.Problem, error)
}

// EventHandler consumes one cycle's transition events. Implementations
// isolate their own failures; HandleEvents never reports them upward.
type EventHandler interface {
	HandleEvents(ctx context.Context, events []entity.MonitoringEvent)
}

// Detector holds the previous cycle's problem snapshot and derives
// raised/resolved events against the current one.
//
// The previous-snapshot map is owned exclusively by the detector's loop:
// exactly one Tick runs at a time by construction, so no locking. On-demand
// queries (see Service.Unresolved) fetch fresh and never touch it.
type Detector struct {
	src     ProblemSource
	handler EventHandler
	log     logx.Logger
	now     func() time.Time

	prev  map[string]entity.Problem
	ready bool
}

func NewDetector(src ProblemSource, handler EventHandler, log logx.Logger) *Detector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{src: src, handler: handler, log: log, now: time.Now}
}

// Tick runs one detection cycle. The first successful call only captures
// the baseline, so startup does not report every open problem as freshly
// raised. On any fetch failure the previous snapshot stays put: the next
// successful tick re-diffs against the last known-good baseline instead of
// mistaking a transient outage for everything being resolved.
func (d *Detector) Tick(ctx context.Context) error {
	current, err := d.src.Problems(ctx)
	if err != nil {
		return err
	}
	currentByID := problemsByID(current)

	if !d.ready {
		d.prev = currentByID
		d.ready = true
		d.log.Info("problem baseline captured", logx.Int("open", len(currentByID)))
		return nil
	}

	events := d.diff(currentByID)
	if len(events) > 0 {
		d.handler.HandleEvents(ctx, events)
	}
	d.prev = currentByID
	return nil
}

// diff orders events all-raised-then-all-resolved; order within each group
// is unspecified (set arithmetic, not sequence comparison).
func (d *Detector) diff(current map[string]entity.Problem) []entity.MonitoringEvent {
	var events []entity.MonitoringEvent

	raised := 0
	for id, p := range current {
		if _, ok := d.prev[id]; ok {
			continue
		}
		raised++
		events = append(events, entity.MonitoringEvent{
			ExternalID: p.ExternalID,
			TriggerID:  p.TriggerID,
			OpData:     p.OpData,
			OccurredAt: p.OccurredAt,
		})
	}

	resolvedAt := d.now().Unix()
	resolved := 0
	for id, p := range d.prev {
		if _, ok := current[id]; ok {
			continue
		}
		resolved++
		at := resolvedAt
		// The problem is gone from the current snapshot, so the event is
		// built from the previous cycle's record.
		events = append(events, entity.MonitoringEvent{
			ExternalID: p.ExternalID,
			TriggerID:  p.TriggerID,
			OpData:     p.OpData,
			OccurredAt: p.OccurredAt,
			ResolvedAt: &at,
		})
	}

	if raised > 0 || resolved > 0 {
		d.log.Debug("problem transitions detected",
			logx.Int("raised", raised), logx.Int("resolved", resolved))
	}
	return events
}

func problemsByID(problems []entity.Problem) map[string]entity.Problem {
	m := make(map[string]entity.Problem, len(problems))
	for _, p := range problems {
		m[p.ExternalID] = p
	}
	return m
}
