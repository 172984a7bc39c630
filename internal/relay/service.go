package relay

import (
	"context"
	"fmt"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

// TriggerSource supplies the live trigger inventory for bulk subscription.
type TriggerSource interface {
	Triggers(ctx context.Context) ([]entity.Trigger, error)
}

// SubscriptionStore is the persisted sink-to-trigger graph.
type SubscriptionStore interface {
	TriggerIDsBySink(ctx context.Context, sinkID int64) ([]int64, error)
	AddSinkTriggers(ctx context.Context, sinkID int64, triggerIDs []int64) error
	RemoveSinkTriggers(ctx context.Context, sinkID int64, triggerIDs []int64) error
	ClearSinkTriggers(ctx context.Context, sinkID int64) error
}

// Service answers the on-demand operations driven by the bot: bulk
// subscription management and the current-problems query.
type Service struct {
	triggers TriggerSource
	problems ProblemSource
	subs     SubscriptionStore
	log      logx.Logger
}

func NewService(triggers TriggerSource, problems ProblemSource, subs SubscriptionStore, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{triggers: triggers, problems: problems, subs: subs, log: log}
}

// SubscribeAll syncs a sink's subscriptions to the live trigger inventory
// with the same set-diff shape as structure reconciliation, minus the
// lifecycle: missing links are inserted, links to vanished triggers are
// deleted. Returns (added, removed).
func (s *Service) SubscribeAll(ctx context.Context, sink entity.Sink) (int, int, error) {
	actual, err := s.triggers.Triggers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch triggers: %w", err)
	}
	saved, err := s.subs.TriggerIDsBySink(ctx, sink.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch subscriptions: %w", err)
	}

	actualIDs := make(map[int64]bool, len(actual))
	for _, t := range actual {
		actualIDs[t.ID] = true
	}
	savedIDs := make(map[int64]bool, len(saved))
	for _, id := range saved {
		savedIDs[id] = true
	}

	var add []int64
	for id := range actualIDs {
		if !savedIDs[id] {
			add = append(add, id)
		}
	}
	var remove []int64
	for id := range savedIDs {
		if !actualIDs[id] {
			remove = append(remove, id)
		}
	}

	if err := s.subs.AddSinkTriggers(ctx, sink.ID, add); err != nil {
		return 0, 0, err
	}
	if err := s.subs.RemoveSinkTriggers(ctx, sink.ID, remove); err != nil {
		return len(add), 0, err
	}

	s.log.Info("sink subscribed to all triggers",
		logx.Int64("sink_id", sink.ID),
		logx.Int("added", len(add)), logx.Int("removed", len(remove)))
	return len(add), len(remove), nil
}

// UnsubscribeAll removes every subscription of the sink.
func (s *Service) UnsubscribeAll(ctx context.Context, sink entity.Sink) error {
	if err := s.subs.ClearSinkTriggers(ctx, sink.ID); err != nil {
		return err
	}
	s.log.Info("sink unsubscribed from all triggers", logx.Int64("sink_id", sink.ID))
	return nil
}

// Unresolved lists the sink's currently-open problems from a fresh
// snapshot. It deliberately does not reuse the detector's baseline (that
// cell belongs to the detector loop alone) and does not fabricate resolved
// timestamps: these are open problems, not resolved events.
func (s *Service) Unresolved(ctx context.Context, sink entity.Sink) ([]entity.Problem, error) {
	problems, err := s.problems.Problems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch problems: %w", err)
	}
	subscribed, err := s.subs.TriggerIDsBySink(ctx, sink.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscriptions: %w", err)
	}

	followed := make(map[int64]bool, len(subscribed))
	for _, id := range subscribed {
		followed[id] = true
	}

	var mine []entity.Problem
	for _, p := range problems {
		if followed[p.TriggerID] {
			mine = append(mine, p)
		}
	}
	return mine, nil
}
