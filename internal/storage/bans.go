package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ScheduledUnban is a timed server ban. Permanent bans have no row.
type ScheduledUnban struct {
	UserID  string
	UnbanAt time.Time
}

// ScrimBan is a scrim ban along with the roles removed when it was applied.
type ScrimBan struct {
	UserID     string
	UnbanAt    time.Time
	SavedRoles []string
}

func (s *Store) GetScheduledUnban(ctx context.Context, userID string) (ScheduledUnban, bool, error) {
	row, err := s.queryRow(ctx, s.sb.
		Select("user_id", "unban_at").
		From("scheduled_unbans").
		Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return ScheduledUnban{}, false, err
	}

	var record ScheduledUnban
	var unbanAt int64
	if err := row.Scan(&record.UserID, &unbanAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScheduledUnban{}, false, nil
		}
		return ScheduledUnban{}, false, err
	}
	record.UnbanAt = time.Unix(unbanAt, 0)
	return record, true, nil
}

func (s *Store) UpsertScheduledUnban(ctx context.Context, record ScheduledUnban) error {
	_, err := s.exec(ctx, s.sb.
		Insert("scheduled_unbans").
		Columns("user_id", "unban_at").
		Values(record.UserID, record.UnbanAt.Unix()).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET unban_at = excluded.unban_at"))
	return err
}

func (s *Store) DeleteScheduledUnban(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, s.sb.
		Delete("scheduled_unbans").
		Where(sq.Eq{"user_id": userID}))
	return err
}

func (s *Store) ListScheduledUnbans(ctx context.Context) ([]ScheduledUnban, error) {
	rows, err := s.query(ctx, s.sb.
		Select("user_id", "unban_at").
		From("scheduled_unbans").
		OrderBy("unban_at", "user_id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ScheduledUnban
	for rows.Next() {
		var record ScheduledUnban
		var unbanAt int64
		if err := rows.Scan(&record.UserID, &unbanAt); err != nil {
			return nil, err
		}
		record.UnbanAt = time.Unix(unbanAt, 0)
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) GetScrimBan(ctx context.Context, userID string) (ScrimBan, bool, error) {
	row, err := s.queryRow(ctx, s.sb.
		Select("user_id", "unban_at", "saved_roles").
		From("scheduled_scrim_unbans").
		Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return ScrimBan{}, false, err
	}

	var record ScrimBan
	var unbanAt int64
	var roles string
	if err := row.Scan(&record.UserID, &unbanAt, &roles); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScrimBan{}, false, nil
		}
		return ScrimBan{}, false, err
	}
	record.UnbanAt = time.Unix(unbanAt, 0)
	record.SavedRoles = splitRoles(roles)
	return record, true, nil
}

// UpsertScrimBan replaces the expiry and saved roles of a scrim ban. Callers
// merging with an existing record pass the union of both role sets.
func (s *Store) UpsertScrimBan(ctx context.Context, record ScrimBan) error {
	_, err := s.exec(ctx, s.sb.
		Insert("scheduled_scrim_unbans").
		Columns("user_id", "unban_at", "saved_roles").
		Values(record.UserID, record.UnbanAt.Unix(), joinRoles(record.SavedRoles)).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET unban_at = excluded.unban_at, saved_roles = excluded.saved_roles"))
	return err
}

func (s *Store) DeleteScrimBan(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, s.sb.
		Delete("scheduled_scrim_unbans").
		Where(sq.Eq{"user_id": userID}))
	return err
}

func (s *Store) ListScrimBans(ctx context.Context) ([]ScrimBan, error) {
	rows, err := s.query(ctx, s.sb.
		Select("user_id", "unban_at", "saved_roles").
		From("scheduled_scrim_unbans").
		OrderBy("unban_at", "user_id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ScrimBan
	for rows.Next() {
		var record ScrimBan
		var unbanAt int64
		var roles string
		if err := rows.Scan(&record.UserID, &unbanAt, &roles); err != nil {
			return nil, err
		}
		record.UnbanAt = time.Unix(unbanAt, 0)
		record.SavedRoles = splitRoles(roles)
		records = append(records, record)
	}
	return records, rows.Err()
}
