package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"monbot/internal/entity"
	"monbot/internal/relay"
	logx "monbot/pkg/logx"
)

// Sender delivers one rendered HTML message to one chat. The bot transport
// implements it; tests substitute a fake.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
}

// Telegram turns transition events into chat messages. Sends share one
// limiter so a burst of events cannot trip the Bot API flood control.
type Telegram struct {
	sender  Sender
	render  Renderer
	limiter *rate.Limiter
	log     logx.Logger
}

// NewTelegram builds a notifier sending through sender at most ratePerSec
// messages per second. ratePerSec <= 0 disables limiting.
func NewTelegram(sender Sender, ratePerSec int, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &Telegram{sender: sender, limiter: limiter, log: log}
}

// SetRate replaces the send rate. Used on config reload.
func (t *Telegram) SetRate(ratePerSec int) {
	if ratePerSec > 0 {
		t.limiter.SetLimit(rate.Limit(ratePerSec))
		t.limiter.SetBurst(ratePerSec)
	} else {
		t.limiter.SetLimit(rate.Inf)
	}
}

func (t *Telegram) NotifyRaised(ctx context.Context, sink entity.Sink, ec relay.EventContext) error {
	return t.deliver(ctx, sink, t.render.RenderRaised(ec, sink.TimeZone))
}

func (t *Telegram) NotifyResolved(ctx context.Context, sink entity.Sink, ec relay.EventContext) error {
	return t.deliver(ctx, sink, t.render.RenderResolved(ec, sink.TimeZone))
}

func (t *Telegram) deliver(ctx context.Context, sink entity.Sink, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if err := t.sender.SendHTML(ctx, sink.ChatID, text); err != nil {
		return fmt.Errorf("send to chat %d: %w", sink.ChatID, err)
	}
	t.log.Debug("event message sent", logx.Int64("chat_id", sink.ChatID))
	return nil
}
