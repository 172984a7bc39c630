// Package reconcile keeps the local mirror of the monitoring system's
// structure (host groups, hosts, triggers) consistent with the live
// snapshot, without ever deleting history: vanished entities are
// soft-disabled, re-appeared ones re-enabled.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

// Source is the monitoring system's current inventory.
type Source interface {
	HostGroups(ctx context.Context) ([]entity.HostGroup, error)
	HostsByGroup(ctx context.Context) (map[int64][]entity.Host, error)
	Triggers(ctx context.Context) ([]entity.Trigger, error)
}

// Mirror is the persisted copy. Each Apply call is one transactional unit so
// the insert/enable/disable steps of a sub-reconciliation land together.
type Mirror interface {
	HostGroups(ctx context.Context) ([]entity.HostGroup, error)
	ApplyHostGroups(ctx context.Context, insert []entity.HostGroup, enable, disable []int64, now int64) error
	Triggers(ctx context.Context) ([]entity.Trigger, error)
	ApplyTriggers(ctx context.Context, insert []entity.Trigger, enable, disable []int64, now int64) error
	HostsByGroup(ctx context.Context) (map[int64][]entity.Host, error)
	InsertHostMemberships(ctx context.Context, ms []entity.HostMembership) error
}

// Engine runs the three sub-reconciliations. It is the sole writer of the
// mirror's lifecycle state; the caller guarantees no concurrent Reconcile
// invocations (one serial loop).
type Engine struct {
	src    Source
	mirror Mirror
	log    logx.Logger

	now func() time.Time
}

func NewEngine(src Source, mirror Mirror, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{src: src, mirror: mirror, log: log, now: time.Now}
}

// Reconcile performs one full tick: host groups, then hosts, then triggers.
// The first failing sub-reconciliation aborts the tick; the next tick starts
// from fresh reads, so nothing needs rolling back across sub-steps.
func (e *Engine) Reconcile(ctx context.Context) error {
	if err := e.reconcileHostGroups(ctx); err != nil {
		return fmt.Errorf("host groups: %w", err)
	}
	if err := e.reconcileHosts(ctx); err != nil {
		return fmt.Errorf("hosts: %w", err)
	}
	if err := e.reconcileTriggers(ctx); err != nil {
		return fmt.Errorf("triggers: %w", err)
	}
	return nil
}

func (e *Engine) reconcileHostGroups(ctx context.Context) error {
	actual, err := e.src.HostGroups(ctx)
	if err != nil {
		return err
	}
	saved, err := e.mirror.HostGroups(ctx)
	if err != nil {
		return err
	}

	diff := diffByID(actual, saved)
	if err := e.mirror.ApplyHostGroups(ctx, diff.New, diff.Enable, diff.Disable, e.now().Unix()); err != nil {
		return err
	}

	e.log.Info("host groups reconciled",
		logx.Int("inserted", len(diff.New)),
		logx.Int("enabled", len(diff.Enable)),
		logx.Int("disabled", len(diff.Disable)))
	return nil
}

// reconcileHosts is insert-only: hosts are never disabled or re-enabled,
// only newly-observed group memberships are recorded.
func (e *Engine) reconcileHosts(ctx context.Context) error {
	actual, err := e.src.HostsByGroup(ctx)
	if err != nil {
		return err
	}
	saved, err := e.mirror.HostsByGroup(ctx)
	if err != nil {
		return err
	}

	newMemberships := diffMemberships(actual, saved)
	if err := e.mirror.InsertHostMemberships(ctx, newMemberships); err != nil {
		return err
	}

	e.log.Info("hosts reconciled", logx.Int("inserted", len(newMemberships)))
	return nil
}

func (e *Engine) reconcileTriggers(ctx context.Context) error {
	actual, err := e.src.Triggers(ctx)
	if err != nil {
		return err
	}
	saved, err := e.mirror.Triggers(ctx)
	if err != nil {
		return err
	}

	diff := diffByID(actual, saved)
	if err := e.mirror.ApplyTriggers(ctx, diff.New, diff.Enable, diff.Disable, e.now().Unix()); err != nil {
		return err
	}

	e.log.Info("triggers reconciled",
		logx.Int("inserted", len(diff.New)),
		logx.Int("enabled", len(diff.Enable)),
		logx.Int("disabled", len(diff.Disable)))
	return nil
}
