package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"monbot/internal/config"
	"monbot/internal/entity"
	"monbot/internal/notify"
	"monbot/internal/store"
	logx "monbot/pkg/logx"
)

const handlerTimeout = 30 * time.Second

// Relay answers the on-demand chat operations.
type Relay interface {
	SubscribeAll(ctx context.Context, sink entity.Sink) (added, removed int, err error)
	UnsubscribeAll(ctx context.Context, sink entity.Sink) error
	Unresolved(ctx context.Context, sink entity.Sink) ([]entity.Problem, error)
}

// Sinks is the persisted chat registry.
type Sinks interface {
	EnsureSink(ctx context.Context, chatID int64, title string) (entity.Sink, error)
	SinkByChat(ctx context.Context, chatID int64) (entity.Sink, error)
	SetSinkTimeZone(ctx context.Context, sinkID int64, zone string) error
}

// TriggerCatalog resolves trigger context for the problems listing.
type TriggerCatalog interface {
	TriggerByID(ctx context.Context, id int64) (entity.Trigger, error)
}

// Bot is the Telegram command surface. It registers chats as sinks, manages
// their subscriptions and time zones, and doubles as the outbound sender for
// event notifications.
type Bot struct {
	tb      *tele.Bot
	relay   Relay
	sinks   Sinks
	catalog TriggerCatalog
	render  notify.Renderer
	log     logx.Logger
}

func New(cfg config.TelegramConfig, relay Relay, sinks Sinks, catalog TriggerCatalog, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{tb: tb, relay: relay, sinks: sinks, catalog: catalog, log: log}
	b.registerHandlers()
	return b, nil
}

// Run polls until ctx is cancelled. Telebot's Start blocks, so the stop
// watcher lives in its own goroutine.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.tb.SetCommands(commandMenu); err != nil {
		b.log.Warn("set command menu failed", logx.Err(err))
	}
	go func() {
		<-ctx.Done()
		b.tb.Stop()
	}()
	b.log.Info("telegram polling started")
	b.tb.Start()
	b.log.Info("telegram polling stopped")
	return nil
}

// SendHTML delivers one rendered message to a chat. It is the notify.Sender
// used for event fan-out.
func (b *Bot) SendHTML(_ context.Context, chatID int64, text string) error {
	_, err := b.tb.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}

var commandMenu = []tele.Command{
	{Text: "help", Description: "functional description"},
	{Text: "problems", Description: "current open problems"},
	{Text: "subscribe", Description: "subscribe to all triggers"},
	{Text: "unsubscribe", Description: "reset all subscriptions"},
	{Text: "timezone", Description: "time zone setting"},
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.wrap("start", b.handleStart))
	b.tb.Handle("/help", b.wrap("help", b.handleHelp))
	b.tb.Handle("/problems", b.wrap("problems", b.handleProblems))
	b.tb.Handle("/subscribe", b.wrap("subscribe", b.handleSubscribe))
	b.tb.Handle("/unsubscribe", b.wrap("unsubscribe", b.handleUnsubscribe))
	b.tb.Handle("/timezone", b.wrap("timezone", b.handleTimeZone))
}

// wrap gives every handler a bounded context and uniform error logging, so
// one misbehaving command cannot wedge the poll loop.
func (b *Bot) wrap(name string, h func(ctx context.Context, c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		if err := h(ctx, c); err != nil {
			if errors.Is(err, errReplied) {
				return nil
			}
			b.log.Error("command failed",
				logx.String("command", name),
				logx.Int64("chat_id", c.Chat().ID),
				logx.Err(err))
			return c.Send("Something went wrong, try again later")
		}
		return nil
	}
}

func (b *Bot) handleStart(ctx context.Context, c tele.Context) error {
	chat := c.Chat()
	sink, err := b.sinks.EnsureSink(ctx, chat.ID, chatTitle(chat))
	if err != nil {
		return fmt.Errorf("register sink: %w", err)
	}
	b.log.Info("sink registered",
		logx.Int64("chat_id", chat.ID), logx.Int64("sink_id", sink.ID))
	return c.Send(startMessage)
}

func (b *Bot) handleHelp(_ context.Context, c tele.Context) error {
	return c.Send(helpMessage)
}

func (b *Bot) handleProblems(ctx context.Context, c tele.Context) error {
	sink, err := b.sink(ctx, c)
	if err != nil {
		return err
	}
	problems, err := b.relay.Unresolved(ctx, sink)
	if err != nil {
		return fmt.Errorf("fetch problems: %w", err)
	}
	if len(problems) == 0 {
		return c.Send(notify.NoProblems)
	}
	lines := make([]string, 0, len(problems))
	for _, p := range problems {
		trigger, err := b.catalog.TriggerByID(ctx, p.TriggerID)
		if err != nil {
			// Mirror can lag the live inventory; show what we know.
			trigger = entity.Trigger{ID: p.TriggerID, Title: fmt.Sprintf("trigger %d", p.TriggerID)}
		}
		lines = append(lines, b.render.RenderProblemLine(p, trigger, sink.TimeZone))
	}
	return c.Send(strings.Join(lines, "\n"), &tele.SendOptions{ParseMode: tele.ModeHTML})
}

func (b *Bot) handleSubscribe(ctx context.Context, c tele.Context) error {
	sink, err := b.sink(ctx, c)
	if err != nil {
		return err
	}
	added, removed, err := b.relay.SubscribeAll(ctx, sink)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return c.Send(fmt.Sprintf("Subscribed to all triggers: %d added, %d stale removed", added, removed))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, c tele.Context) error {
	sink, err := b.sink(ctx, c)
	if err != nil {
		return err
	}
	if err := b.relay.UnsubscribeAll(ctx, sink); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return c.Send("All subscriptions reset")
}

func (b *Bot) handleTimeZone(ctx context.Context, c tele.Context) error {
	sink, err := b.sink(ctx, c)
	if err != nil {
		return err
	}
	args := c.Args()
	if len(args) == 0 {
		return c.Send(fmt.Sprintf("Your current time zone is %s\nUsage: /timezone Area/City (IANA name)", sink.TimeZone))
	}
	zone := args[0]
	if _, err := time.LoadLocation(zone); err != nil {
		return c.Send(fmt.Sprintf("Unknown time zone %q, expected an IANA name like Europe/Berlin", zone))
	}
	if err := b.sinks.SetSinkTimeZone(ctx, sink.ID, zone); err != nil {
		return fmt.Errorf("set time zone: %w", err)
	}
	return c.Send(fmt.Sprintf("Time zone set to %s", zone))
}

// errReplied marks an error the handler already answered in chat; wrap must
// not log it or send the generic apology on top.
var errReplied = errors.New("replied")

// sink resolves the calling chat's registration, pointing fresh chats at
// /start instead of failing.
func (b *Bot) sink(ctx context.Context, c tele.Context) (entity.Sink, error) {
	sink, err := b.sinks.SinkByChat(ctx, c.Chat().ID)
	if errors.Is(err, store.ErrNotFound) {
		if serr := c.Send("This chat is not registered yet, use /start first"); serr != nil {
			return entity.Sink{}, serr
		}
		return entity.Sink{}, errReplied
	}
	if err != nil {
		return entity.Sink{}, fmt.Errorf("resolve sink: %w", err)
	}
	return sink, nil
}

func chatTitle(chat *tele.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name != "" {
		return name
	}
	return chat.Username
}
