package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrDuplicate is returned when an insert-only record already exists.
var ErrDuplicate = errors.New("record already exists")

type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

// New opens the embedded sqlite database at dbPath.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// One connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		return &Store{db: db, driver: driver, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
	case DriverPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return &Store{db: db, driver: driver, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Migrate() error {
	dir := path.Join("migrations", s.driver)
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join(dir, file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, builder sq.Sqlizer) (sql.Result, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, builder sq.Sqlizer) (*sql.Row, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

func (s *Store) query(ctx context.Context, builder sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.exec(ctx, s.sb.
		Insert("audit_logs").
		Columns("guild_id", "user_id", "level", "event", "details", "created_at").
		Values(log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix()))
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.query(ctx, s.sb.
		Select("id", "guild_id", "user_id", "level", "event", "details", "created_at").
		From("audit_logs").
		Where(sq.Eq{"guild_id": guildID}).
		Where(sq.GtOrEq{"created_at": since.Unix()}).
		OrderBy("created_at DESC", "id DESC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.exec(ctx, s.sb.
		Delete("audit_logs").
		Where(sq.Lt{"created_at": cutoff.Unix()}))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// joinRoles stores a role set as a sorted, deduplicated comma separated list.
func joinRoles(roles []string) string {
	return strings.Join(normalizeRoles(roles), ",")
}

func splitRoles(value string) []string {
	if value == "" {
		return nil
	}
	return normalizeRoles(strings.Split(value, ","))
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
