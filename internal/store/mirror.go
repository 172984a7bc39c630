package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"monbot/internal/entity"
)

// HostGroups returns every mirrored host group with a positive external id,
// disabled ones included; the reconciler partitions them itself.
func (s *Store) HostGroups(ctx context.Context) ([]entity.HostGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, disabled_at FROM host_groups WHERE id > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []entity.HostGroup
	for rows.Next() {
		var (
			g  entity.HostGroup
			da sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &g.Title, &da); err != nil {
			return nil, err
		}
		g.DisabledAt = scanNullInt64(da)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ApplyHostGroups applies one reconciliation diff in a single transaction:
// insert new groups, clear disabled_at for re-appeared ones, stamp vanished
// ones with now.
func (s *Store) ApplyHostGroups(ctx context.Context, insert []entity.HostGroup, enable, disable []int64, now int64) error {
	if len(insert) == 0 && len(enable) == 0 && len(disable) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range insert {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO host_groups(id, title, disabled_at) VALUES(?,?,?)`,
				g.ID, g.Title, nullInt64(g.DisabledAt)); err != nil {
				return fmt.Errorf("insert host group %d: %w", g.ID, err)
			}
		}
		if len(enable) > 0 {
			ph, args := int64Args(enable)
			if _, err := tx.ExecContext(ctx,
				`UPDATE host_groups SET disabled_at = NULL WHERE id IN (`+ph+`)`, args...); err != nil {
				return fmt.Errorf("enable host groups: %w", err)
			}
		}
		if len(disable) > 0 {
			ph, args := int64Args(disable)
			args = append([]any{now}, args...)
			if _, err := tx.ExecContext(ctx,
				`UPDATE host_groups SET disabled_at = ? WHERE id IN (`+ph+`)`, args...); err != nil {
				return fmt.Errorf("disable host groups: %w", err)
			}
		}
		return nil
	})
}

// Triggers returns every mirrored trigger with a positive external id,
// disabled ones included.
func (s *Store) Triggers(ctx context.Context) ([]entity.Trigger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, severity, host_id, disabled_at FROM triggers WHERE id > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []entity.Trigger
	for rows.Next() {
		var (
			t  entity.Trigger
			da sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Severity, &t.HostID, &da); err != nil {
			return nil, err
		}
		t.DisabledAt = scanNullInt64(da)
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func (s *Store) ApplyTriggers(ctx context.Context, insert []entity.Trigger, enable, disable []int64, now int64) error {
	if len(insert) == 0 && len(enable) == 0 && len(disable) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range insert {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO triggers(id, title, severity, host_id, disabled_at) VALUES(?,?,?,?,?)`,
				t.ID, t.Title, t.Severity, t.HostID, nullInt64(t.DisabledAt)); err != nil {
				return fmt.Errorf("insert trigger %d: %w", t.ID, err)
			}
		}
		if len(enable) > 0 {
			ph, args := int64Args(enable)
			if _, err := tx.ExecContext(ctx,
				`UPDATE triggers SET disabled_at = NULL WHERE id IN (`+ph+`)`, args...); err != nil {
				return fmt.Errorf("enable triggers: %w", err)
			}
		}
		if len(disable) > 0 {
			ph, args := int64Args(disable)
			args = append([]any{now}, args...)
			if _, err := tx.ExecContext(ctx,
				`UPDATE triggers SET disabled_at = ? WHERE id IN (`+ph+`)`, args...); err != nil {
				return fmt.Errorf("disable triggers: %w", err)
			}
		}
		return nil
	})
}

// HostsByGroup returns mirrored hosts keyed by host-group external id.
func (s *Store) HostsByGroup(ctx context.Context) (map[int64][]entity.Host, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hg.host_group_id, h.id, h.title
		 FROM host_to_host_group hg
		 JOIN hosts h ON h.id = hg.host_id
		 WHERE h.id > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byGroup := make(map[int64][]entity.Host)
	for rows.Next() {
		var (
			groupID int64
			h       entity.Host
		)
		if err := rows.Scan(&groupID, &h.ID, &h.Title); err != nil {
			return nil, err
		}
		byGroup[groupID] = append(byGroup[groupID], h)
	}
	return byGroup, rows.Err()
}

// InsertHostMemberships records hosts newly observed in a group: the host
// row (if absent) plus the join row. Join rows are insert-only. One
// transaction per call.
func (s *Store) InsertHostMemberships(ctx context.Context, ms []entity.HostMembership) error {
	if len(ms) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range ms {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hosts(id, title) VALUES(?,?)
				 ON CONFLICT(id) DO NOTHING`,
				m.Host.ID, m.Host.Title); err != nil {
				return fmt.Errorf("insert host %d: %w", m.Host.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO host_to_host_group(host_id, host_group_id) VALUES(?,?)
				 ON CONFLICT(host_id, host_group_id) DO NOTHING`,
				m.Host.ID, m.HostGroupID); err != nil {
				return fmt.Errorf("insert membership %d->%d: %w", m.Host.ID, m.HostGroupID, err)
			}
		}
		return nil
	})
}

// ---- targeted lookups for event rendering ----

func (s *Store) TriggerByID(ctx context.Context, id int64) (entity.Trigger, error) {
	var (
		t  entity.Trigger
		da sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, severity, host_id, disabled_at FROM triggers WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &t.Severity, &t.HostID, &da)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Trigger{}, fmt.Errorf("trigger %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return entity.Trigger{}, err
	}
	t.DisabledAt = scanNullInt64(da)
	return t, nil
}

func (s *Store) HostByID(ctx context.Context, id int64) (entity.Host, error) {
	var h entity.Host
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title FROM hosts WHERE id = ?`, id).Scan(&h.ID, &h.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Host{}, fmt.Errorf("host %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return entity.Host{}, err
	}
	return h, nil
}

// HostGroupsByHost returns the active groups a host belongs to.
func (s *Store) HostGroupsByHost(ctx context.Context, hostID int64) ([]entity.HostGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.title, g.disabled_at
		 FROM host_groups g
		 JOIN host_to_host_group hg ON hg.host_group_id = g.id
		 WHERE hg.host_id = ? AND g.disabled_at IS NULL`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []entity.HostGroup
	for rows.Next() {
		var (
			g  entity.HostGroup
			da sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &g.Title, &da); err != nil {
			return nil, err
		}
		g.DisabledAt = scanNullInt64(da)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
