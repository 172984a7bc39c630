package relay

import (
	"context"
	"errors"
	"testing"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

type fakeCatalog struct {
	sinks    map[int64][]entity.Sink
	triggers map[int64]entity.Trigger
	hosts    map[int64]entity.Host
	groups   map[int64][]entity.HostGroup

	sinkErr    error
	contextGet int
}

func (f *fakeCatalog) SinksByTrigger(_ context.Context, triggerID int64) ([]entity.Sink, error) {
	if f.sinkErr != nil {
		return nil, f.sinkErr
	}
	return f.sinks[triggerID], nil
}

func (f *fakeCatalog) TriggerByID(_ context.Context, id int64) (entity.Trigger, error) {
	f.contextGet++
	t, ok := f.triggers[id]
	if !ok {
		return entity.Trigger{}, errors.New("trigger not found")
	}
	return t, nil
}

func (f *fakeCatalog) HostByID(_ context.Context, id int64) (entity.Host, error) {
	h, ok := f.hosts[id]
	if !ok {
		return entity.Host{}, errors.New("host not found")
	}
	return h, nil
}

func (f *fakeCatalog) HostGroupsByHost(_ context.Context, hostID int64) ([]entity.HostGroup, error) {
	return f.groups[hostID], nil
}

type call struct {
	chatID   int64
	resolved bool
}

type fakeNotifier struct {
	calls   []call
	failFor map[int64]error // chatID -> error
}

func (f *fakeNotifier) notify(sink entity.Sink, resolved bool) error {
	f.calls = append(f.calls, call{chatID: sink.ChatID, resolved: resolved})
	if err := f.failFor[sink.ChatID]; err != nil {
		return err
	}
	return nil
}

func (f *fakeNotifier) NotifyRaised(_ context.Context, sink entity.Sink, _ EventContext) error {
	return f.notify(sink, false)
}

func (f *fakeNotifier) NotifyResolved(_ context.Context, sink entity.Sink, _ EventContext) error {
	return f.notify(sink, true)
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		sinks: map[int64][]entity.Sink{
			500: {{ID: 1, ChatID: 100}, {ID: 2, ChatID: 200}},
		},
		triggers: map[int64]entity.Trigger{500: {ID: 500, Title: "Disk full", Severity: 4, HostID: 10}},
		hosts:    map[int64]entity.Host{10: {ID: 10, Title: "web-1"}},
		groups:   map[int64][]entity.HostGroup{10: {{ID: 1, Title: "Linux"}}},
	}
}

func raisedEvent(triggerID int64) entity.MonitoringEvent {
	return entity.MonitoringEvent{ExternalID: "e1", TriggerID: triggerID, OccurredAt: 1000}
}

func TestDispatchFanoutIsolation(t *testing.T) {
	t.Parallel()
	cat := newCatalog()
	notif := &fakeNotifier{failFor: map[int64]error{100: errors.New("blocked by user")}}
	d := NewDispatcher(cat, notif, nil, logx.Nop())

	d.HandleEvents(context.Background(), []entity.MonitoringEvent{raisedEvent(500)})

	// Both sinks got exactly one call despite the first one failing.
	if len(notif.calls) != 2 {
		t.Fatalf("calls = %+v, want 2", notif.calls)
	}
	if notif.calls[0].chatID != 100 || notif.calls[1].chatID != 200 {
		t.Fatalf("calls = %+v", notif.calls)
	}
}

func TestDispatchNoSubscribersIsNoop(t *testing.T) {
	t.Parallel()
	cat := newCatalog()
	cat.sinks = nil
	notif := &fakeNotifier{}
	d := NewDispatcher(cat, notif, nil, logx.Nop())

	d.HandleEvents(context.Background(), []entity.MonitoringEvent{raisedEvent(500)})

	if len(notif.calls) != 0 {
		t.Fatalf("unexpected calls: %+v", notif.calls)
	}
	if cat.contextGet != 0 {
		t.Fatal("context fetched for an event with no recipients")
	}
}

func TestDispatchContextFetchedOncePerEvent(t *testing.T) {
	t.Parallel()
	cat := newCatalog()
	notif := &fakeNotifier{}
	d := NewDispatcher(cat, notif, nil, logx.Nop())

	d.HandleEvents(context.Background(), []entity.MonitoringEvent{raisedEvent(500)})

	if cat.contextGet != 1 {
		t.Fatalf("trigger fetched %d times, want 1 (shared by recipients)", cat.contextGet)
	}
}

func TestDispatchLookupFailureSkipsOnlyThatEvent(t *testing.T) {
	t.Parallel()
	cat := newCatalog()
	cat.sinks[501] = []entity.Sink{{ID: 3, ChatID: 300}}
	// trigger 501 has no catalog entry: context lookup fails.
	notif := &fakeNotifier{}
	d := NewDispatcher(cat, notif, nil, logx.Nop())

	events := []entity.MonitoringEvent{
		{ExternalID: "bad", TriggerID: 501},
		raisedEvent(500),
	}
	d.HandleEvents(context.Background(), events)

	if len(notif.calls) != 2 {
		t.Fatalf("second event should still fan out, calls = %+v", notif.calls)
	}
}

func TestDispatchResolvedUsesResolvedPath(t *testing.T) {
	t.Parallel()
	cat := newCatalog()
	notif := &fakeNotifier{}
	d := NewDispatcher(cat, notif, nil, logx.Nop())

	at := int64(2000)
	ev := raisedEvent(500)
	ev.ResolvedAt = &at
	d.HandleEvents(context.Background(), []entity.MonitoringEvent{ev})

	for _, c := range notif.calls {
		if !c.resolved {
			t.Fatalf("expected resolved notifications, got %+v", notif.calls)
		}
	}
}

type fakeAnnouncer struct {
	announced int
	err       error
}

func (f *fakeAnnouncer) Announce(context.Context, EventContext) error {
	f.announced++
	return f.err
}

func TestDispatchAnnouncesOncePerEvent(t *testing.T) {
	t.Parallel()
	cat := newCatalog()
	notif := &fakeNotifier{}
	ops := &fakeAnnouncer{err: errors.New("webhook down")}
	d := NewDispatcher(cat, notif, ops, logx.Nop())

	d.HandleEvents(context.Background(), []entity.MonitoringEvent{raisedEvent(500)})

	if ops.announced != 1 {
		t.Fatalf("announced %d times, want 1", ops.announced)
	}
	// Announce failure must not affect sink deliveries.
	if len(notif.calls) != 2 {
		t.Fatalf("calls = %+v", notif.calls)
	}
}
