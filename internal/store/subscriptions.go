package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"monbot/internal/entity"
)

// EnsureSink returns the sink for a chat, creating it on first contact.
func (s *Store) EnsureSink(ctx context.Context, chatID int64, title string) (entity.Sink, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sinks(chat_id, title, created_at) VALUES(?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title`,
		chatID, title, time.Now().Unix())
	if err != nil {
		return entity.Sink{}, err
	}
	return s.SinkByChat(ctx, chatID)
}

func (s *Store) SinkByChat(ctx context.Context, chatID int64) (entity.Sink, error) {
	var sink entity.Sink
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, title, time_zone FROM sinks WHERE chat_id = ?`, chatID).
		Scan(&sink.ID, &sink.ChatID, &sink.Title, &sink.TimeZone)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Sink{}, fmt.Errorf("sink for chat %d: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return entity.Sink{}, err
	}
	return sink, nil
}

func (s *Store) SetSinkTimeZone(ctx context.Context, sinkID int64, zone string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sinks SET time_zone = ? WHERE id = ?`, zone, sinkID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sink %d: %w", sinkID, ErrNotFound)
	}
	return nil
}

// SinksByTrigger returns every sink subscribed to a trigger.
func (s *Store) SinksByTrigger(ctx context.Context, triggerID int64) ([]entity.Sink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.chat_id, s.title, s.time_zone
		 FROM sinks s
		 JOIN sink_triggers st ON st.sink_id = s.id
		 WHERE st.trigger_id = ?`, triggerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sinks []entity.Sink
	for rows.Next() {
		var sink entity.Sink
		if err := rows.Scan(&sink.ID, &sink.ChatID, &sink.Title, &sink.TimeZone); err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, rows.Err()
}

// TriggerIDsBySink returns the external ids of the triggers a sink follows.
func (s *Store) TriggerIDsBySink(ctx context.Context, sinkID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trigger_id FROM sink_triggers WHERE sink_id = ?`, sinkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddSinkTriggers links a sink to triggers it does not follow yet. One
// transaction per call.
func (s *Store) AddSinkTriggers(ctx context.Context, sinkID int64, triggerIDs []int64) error {
	if len(triggerIDs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range triggerIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sink_triggers(sink_id, trigger_id) VALUES(?,?)
				 ON CONFLICT(sink_id, trigger_id) DO NOTHING`, sinkID, id); err != nil {
				return fmt.Errorf("subscribe sink %d to trigger %d: %w", sinkID, id, err)
			}
		}
		return nil
	})
}

// RemoveSinkTriggers unlinks a sink from the given triggers.
func (s *Store) RemoveSinkTriggers(ctx context.Context, sinkID int64, triggerIDs []int64) error {
	if len(triggerIDs) == 0 {
		return nil
	}
	ph, args := int64Args(triggerIDs)
	args = append([]any{sinkID}, args...)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sink_triggers WHERE sink_id = ? AND trigger_id IN (`+ph+`)`, args...)
	return err
}

// ClearSinkTriggers removes every subscription of a sink.
func (s *Store) ClearSinkTriggers(ctx context.Context, sinkID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sink_triggers WHERE sink_id = ?`, sinkID)
	return err
}
