package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"

	"monbot/internal/relay"
	logx "monbot/pkg/logx"
)

// URLSender pushes one plain-text message to one Shoutrrr service URL.
type URLSender interface {
	Send(url, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// OpsMirror copies every transition event to a set of operations channels
// (Slack, Discord, generic webhooks). It renders plain text in UTC since
// the audience is a channel, not a configured sink.
type OpsMirror struct {
	urls   []string
	sender URLSender
	log    logx.Logger
}

func NewOpsMirror(urls []string, sender URLSender, log logx.Logger) *OpsMirror {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &OpsMirror{urls: urls, sender: sender, log: log}
}

// Announce sends the event once to every configured URL. A failing URL does
// not stop the others; the joined error reports all failures.
func (m *OpsMirror) Announce(_ context.Context, ec relay.EventContext) error {
	msg := opsMessage(ec)
	var errs []error
	for _, u := range m.urls {
		if err := m.sender.Send(u, msg); err != nil {
			errs = append(errs, fmt.Errorf("announce to %s: %w", serviceScheme(u), err))
		}
	}
	return errors.Join(errs...)
}

func opsMessage(ec relay.EventContext) string {
	state := "raised"
	marker := SeverityEmoji(ec.Trigger.Severity)
	if ec.Event.Resolved() {
		state = "resolved"
		marker = symbolResolved
	}
	return fmt.Sprintf("%s [%s] %s event %s: %s on %s at %s",
		marker, state,
		SeverityName(ec.Trigger.Severity),
		ec.Event.ExternalID,
		ec.Trigger.Title,
		ec.Host.Title,
		formatStamp(ec.Event.OccurredAt, ""))
}

// serviceScheme trims a Shoutrrr URL down to its scheme so credentials
// never reach the error log.
func serviceScheme(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return "?"
}
