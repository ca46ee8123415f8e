package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type Freeze struct {
	UserID     string
	SavedRoles []string
	FrozenAt   time.Time
}

type Screensharer struct {
	UserID      string
	FreezeCount int
}

func (s *Store) GetFreeze(ctx context.Context, userID string) (Freeze, bool, error) {
	row, err := s.queryRow(ctx, s.sb.
		Select("user_id", "saved_roles", "frozen_at").
		From("freezes").
		Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return Freeze{}, false, err
	}

	var record Freeze
	var roles string
	var frozenAt int64
	if err := row.Scan(&record.UserID, &roles, &frozenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Freeze{}, false, nil
		}
		return Freeze{}, false, err
	}
	record.SavedRoles = splitRoles(roles)
	record.FrozenAt = time.Unix(frozenAt, 0)
	return record, true, nil
}

// CreateFreeze inserts a freeze and returns ErrDuplicate if the user is
// already frozen. Freezes are never merged.
func (s *Store) CreateFreeze(ctx context.Context, record Freeze) error {
	result, err := s.exec(ctx, s.sb.
		Insert("freezes").
		Columns("user_id", "saved_roles", "frozen_at").
		Values(record.UserID, joinRoles(record.SavedRoles), record.FrozenAt.Unix()).
		Suffix("ON CONFLICT(user_id) DO NOTHING"))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *Store) DeleteFreeze(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, s.sb.
		Delete("freezes").
		Where(sq.Eq{"user_id": userID}))
	return err
}

func (s *Store) ListFreezes(ctx context.Context) ([]Freeze, error) {
	rows, err := s.query(ctx, s.sb.
		Select("user_id", "saved_roles", "frozen_at").
		From("freezes").
		OrderBy("frozen_at", "user_id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Freeze
	for rows.Next() {
		var record Freeze
		var roles string
		var frozenAt int64
		if err := rows.Scan(&record.UserID, &roles, &frozenAt); err != nil {
			return nil, err
		}
		record.SavedRoles = splitRoles(roles)
		record.FrozenAt = time.Unix(frozenAt, 0)
		records = append(records, record)
	}
	return records, rows.Err()
}

// IncrementScreensharer adds one completed freeze to the executor's tally and
// returns the new count.
func (s *Store) IncrementScreensharer(ctx context.Context, userID string) (int, error) {
	_, err := s.exec(ctx, s.sb.
		Insert("screensharers").
		Columns("user_id", "freeze_count").
		Values(userID, 1).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET freeze_count = screensharers.freeze_count + 1"))
	if err != nil {
		return 0, err
	}

	row, err := s.queryRow(ctx, s.sb.
		Select("freeze_count").
		From("screensharers").
		Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) TopScreensharers(ctx context.Context, limit int) ([]Screensharer, error) {
	rows, err := s.query(ctx, s.sb.
		Select("user_id", "freeze_count").
		From("screensharers").
		OrderBy("freeze_count DESC", "user_id").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []Screensharer
	for rows.Next() {
		var stat Screensharer
		if err := rows.Scan(&stat.UserID, &stat.FreezeCount); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
