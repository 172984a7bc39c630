package relay

import (
	"context"
	"fmt"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

// Catalog resolves the context needed to render one event: the owning
// trigger and host, the host's groups, and the subscribed sinks.
type Catalog interface {
	TriggerByID(ctx context.Context, id int64) (entity.Trigger, error)
	HostByID(ctx context.Context, id int64) (entity.Host, error)
	HostGroupsByHost(ctx context.Context, hostID int64) ([]entity.HostGroup, error)
	SinksByTrigger(ctx context.Context, triggerID int64) ([]entity.Sink, error)
}

// EventContext is everything a notifier needs to render one event. Fetched
// once per event and shared by all of its recipients.
type EventContext struct {
	Event      entity.MonitoringEvent
	Trigger    entity.Trigger
	Host       entity.Host
	HostGroups []entity.HostGroup
}

// Notifier delivers one rendered event to one sink. Either call may fail
// independently per sink.
type Notifier interface {
	NotifyRaised(ctx context.Context, sink entity.Sink, ec EventContext) error
	NotifyResolved(ctx context.Context, sink entity.Sink, ec EventContext) error
}

// Announcer mirrors events to an operations channel, once per event
// (not per sink). Optional.
type Announcer interface {
	Announce(ctx context.Context, ec EventContext) error
}

// Dispatcher fans transition events out to subscribed sinks. Events are
// processed sequentially to bound database and API load and to keep the
// per-run log order deterministic.
type Dispatcher struct {
	catalog  Catalog
	notifier Notifier
	ops      Announcer // may be nil
	log      logx.Logger
}

func NewDispatcher(catalog Catalog, notifier Notifier, ops Announcer, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{catalog: catalog, notifier: notifier, ops: ops, log: log}
}

// HandleEvents processes each event in order. A failing event is logged and
// skipped; it never blocks the rest of the batch.
func (d *Dispatcher) HandleEvents(ctx context.Context, events []entity.MonitoringEvent) {
	for _, ev := range events {
		if err := d.handleEvent(ctx, ev); err != nil {
			d.log.Error("monitoring event handling failed",
				logx.String("event_id", ev.ExternalID),
				logx.Int64("trigger_id", ev.TriggerID),
				logx.Err(err))
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev entity.MonitoringEvent) error {
	sinks, err := d.catalog.SinksByTrigger(ctx, ev.TriggerID)
	if err != nil {
		return fmt.Errorf("resolve sinks: %w", err)
	}
	if len(sinks) == 0 && d.ops == nil {
		return nil
	}

	ec, err := d.eventContext(ctx, ev)
	if err != nil {
		return err
	}

	// A failure for one sink is isolated: log it, keep notifying the rest.
	for _, sink := range sinks {
		var nerr error
		if ev.Resolved() {
			nerr = d.notifier.NotifyResolved(ctx, sink, ec)
		} else {
			nerr = d.notifier.NotifyRaised(ctx, sink, ec)
		}
		if nerr != nil {
			d.log.Error("sink notification failed",
				logx.String("event_id", ev.ExternalID),
				logx.Int64("chat_id", sink.ChatID),
				logx.Err(nerr))
		}
	}

	if d.ops != nil {
		if err := d.ops.Announce(ctx, ec); err != nil {
			d.log.Error("ops announce failed",
				logx.String("event_id", ev.ExternalID), logx.Err(err))
		}
	}
	return nil
}

func (d *Dispatcher) eventContext(ctx context.Context, ev entity.MonitoringEvent) (EventContext, error) {
	trigger, err := d.catalog.TriggerByID(ctx, ev.TriggerID)
	if err != nil {
		return EventContext{}, fmt.Errorf("resolve trigger: %w", err)
	}
	host, err := d.catalog.HostByID(ctx, trigger.HostID)
	if err != nil {
		return EventContext{}, fmt.Errorf("resolve host: %w", err)
	}
	groups, err := d.catalog.HostGroupsByHost(ctx, host.ID)
	if err != nil {
		return EventContext{}, fmt.Errorf("resolve host groups: %w", err)
	}
	return EventContext{Event: ev, Trigger: trigger, Host: host, HostGroups: groups}, nil
}
