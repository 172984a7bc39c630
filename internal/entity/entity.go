// Package entity holds the domain model shared by the store, the
// reconciliation engine and the relay: the mirrored monitoring structure
// (host groups, hosts, triggers), ephemeral problems and the transition
// events derived from them, and notification sinks.
package entity

// HostGroup mirrors a monitoring-system host group. The id is assigned by
// the monitoring system and never reused; rows are soft-disabled, never
// deleted.
type HostGroup struct {
	ID         int64
	Title      string
	DisabledAt *int64 // unix seconds; nil means active
}

func (g HostGroup) ExternalID() int64 { return g.ID }
func (g HostGroup) IsDisabled() bool  { return g.DisabledAt != nil }

// Host mirrors a monitored host. Hosts carry no lifecycle flag: the mirror
// only ever inserts new ones (see reconcile.Engine).
type Host struct {
	ID    int64
	Title string
}

// HostMembership links a host to one host group. Join rows are created once
// and never updated.
type HostMembership struct {
	HostGroupID int64
	Host        Host
}

// Trigger mirrors a monitoring-system trigger. Severity is the system's
// ordinal (0..5). Same soft-disable lifecycle as HostGroup.
type Trigger struct {
	ID         int64
	Title      string
	Severity   int
	HostID     int64
	DisabledAt *int64
}

func (t Trigger) ExternalID() int64 { return t.ID }
func (t Trigger) IsDisabled() bool  { return t.DisabledAt != nil }

// Problem is one currently-open problem as reported by the monitoring
// system. Problems are never persisted; two polling snapshots are compared
// by ExternalID set membership only.
type Problem struct {
	ExternalID string
	TriggerID  int64
	OpData     string
	OccurredAt int64 // unix seconds
}

// MonitoringEvent is a transition derived from two problem snapshots.
// ResolvedAt nil means the problem was raised; non-nil means it disappeared
// and ResolvedAt is the detection time. Events are built fresh each cycle
// and consumed immediately.
type MonitoringEvent struct {
	ExternalID string
	TriggerID  int64
	OpData     string
	OccurredAt int64
	ResolvedAt *int64
}

// Resolved reports whether the event marks a problem as gone.
func (e MonitoringEvent) Resolved() bool { return e.ResolvedAt != nil }

// Sink is a notification recipient: one Telegram chat with its display
// settings.
type Sink struct {
	ID       int64
	ChatID   int64
	Title    string
	TimeZone string
}
