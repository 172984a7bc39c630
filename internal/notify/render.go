package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"monbot/internal/entity"
	"monbot/internal/relay"
)

const (
	symbolSection    = "🔸"
	symbolSubsection = "🔹"
	symbolResolved   = "✅"

	subsectionIndent  = "   "
	hostGroupCombiner = " | "

	monitoringSystemTitle = "Zabbix"
)

var severityEmoji = map[int]string{
	0: "ℹ",
	1: "ℹ",
	2: "😐",
	3: "🔥",
	4: "👹",
	5: "💀",
}

var severityName = map[int]string{
	0: "Info",
	1: "Info",
	2: "Warning",
	3: "Average",
	4: "Critical",
	5: "Disaster",
}

// SeverityEmoji maps a Zabbix severity id to its marker. Unknown ids fall
// back to the info marker rather than failing the render.
func SeverityEmoji(severity int) string {
	if e, ok := severityEmoji[severity]; ok {
		return e
	}
	return severityEmoji[0]
}

// SeverityName maps a Zabbix severity id to a human title.
func SeverityName(severity int) string {
	if n, ok := severityName[severity]; ok {
		return n
	}
	return severityName[0]
}

// Renderer builds the HTML message bodies sent to chats. All dynamic text
// coming from the monitoring system is escaped; the layout markers are ours.
type Renderer struct{}

// RenderRaised renders a newly raised event in the sink's time zone.
func (Renderer) RenderRaised(ec relay.EventContext, tz string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s event %s\n",
		SeverityEmoji(ec.Trigger.Severity),
		SeverityName(ec.Trigger.Severity),
		html.EscapeString(ec.Event.ExternalID))
	fmt.Fprintf(&b, "%s Occurred at %s\n", symbolSection, formatStamp(ec.Event.OccurredAt, tz))
	writeOrigin(&b, ec)
	if ec.Event.OpData != "" {
		fmt.Fprintf(&b, "%s Description: %s\n", symbolSection, html.EscapeString(ec.Event.OpData))
	}
	return b.String()
}

// RenderResolved renders the resolution notice, including how long the
// problem stayed open.
func (Renderer) RenderResolved(ec relay.EventContext, tz string) string {
	resolvedAt := ec.Event.OccurredAt
	if ec.Event.ResolvedAt != nil {
		resolvedAt = *ec.Event.ResolvedAt
	}
	open := time.Duration(resolvedAt-ec.Event.OccurredAt) * time.Second
	var b strings.Builder
	fmt.Fprintf(&b, "%s Event %s resolved at %s (in %s)\n",
		symbolResolved,
		html.EscapeString(ec.Event.ExternalID),
		formatStamp(resolvedAt, tz),
		open)
	writeOrigin(&b, ec)
	return b.String()
}

// RenderProblemLine renders one row of the current-problems listing.
func (Renderer) RenderProblemLine(p entity.Problem, trigger entity.Trigger, tz string) string {
	line := fmt.Sprintf("%s %s (since %s)",
		SeverityEmoji(trigger.Severity),
		html.EscapeString(trigger.Title),
		formatStamp(p.OccurredAt, tz))
	if p.OpData != "" {
		line += ": " + html.EscapeString(p.OpData)
	}
	return line
}

// NoProblems is the answer for an empty current-problems listing.
const NoProblems = "No problems"

func writeOrigin(b *strings.Builder, ec relay.EventContext) {
	groups := make([]string, 0, len(ec.HostGroups))
	for _, g := range ec.HostGroups {
		groups = append(groups, html.EscapeString(g.Title))
	}
	prefix := subsectionIndent + symbolSubsection
	fmt.Fprintf(b, "%s Source:\n", symbolSection)
	fmt.Fprintf(b, "%s Monitoring system: %s\n", prefix, monitoringSystemTitle)
	fmt.Fprintf(b, "%s Host groups: %s\n", prefix, strings.Join(groups, hostGroupCombiner))
	fmt.Fprintf(b, "%s Host: %s\n", prefix, html.EscapeString(ec.Host.Title))
	fmt.Fprintf(b, "%s Trigger: %s\n", prefix, html.EscapeString(ec.Trigger.Title))
}

// formatStamp renders a unix timestamp in the given IANA zone. A missing or
// invalid zone degrades to UTC instead of failing the notification.
func formatStamp(unix int64, tz string) string {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return time.Unix(unix, 0).In(loc).Format("2006-01-02 15:04:05")
}
