package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const reminderCols = `id, owner_id, chat_id, message, due_at, status, sent_count, max_sent,
	last_sent_at, snooze_until, priority, category, tags, notes, recurrence, recurrence_end,
	created_at, updated_at`

func (s *sqliteStore) SaveReminder(ctx context.Context, r *reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.ChatID, r.Message, r.DueAt.UnixMilli(), string(r.Status),
		r.SentCount, r.MaxSent, nullMilli(r.LastSentAt), nullMilli(r.SnoozeUntil),
		string(r.Priority), r.Category, joinTags(r.Tags), r.Notes,
		string(r.Recurrence), nullMilli(r.RecurrenceEnd),
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) UpdateReminder(ctx context.Context, r *reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET message=?, due_at=?, status=?, sent_count=?, max_sent=?,
		 last_sent_at=?, snooze_until=?, priority=?, category=?, tags=?, notes=?,
		 recurrence=?, recurrence_end=?, updated_at=? WHERE id=?`,
		r.Message, r.DueAt.UnixMilli(), string(r.Status), r.SentCount, r.MaxSent,
		nullMilli(r.LastSentAt), nullMilli(r.SnoozeUntil),
		string(r.Priority), r.Category, joinTags(r.Tags), r.Notes,
		string(r.Recurrence), nullMilli(r.RecurrenceEnd), r.UpdatedAt.UnixMilli(), r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (*reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) Archive(ctx context.Context, id string, e reminder.HistoryEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if err := appendHistoryTx(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e reminder.HistoryEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return appendHistoryTx(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendHistoryTx(ctx context.Context, db execer, e reminder.HistoryEntry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO reminder_history(reminder_id, owner_id, chat_id, message, action, sent_count, due_at, created_at, occurred_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ReminderID, e.OwnerID, e.ChatID, e.Message, string(e.Action),
		e.SentCount, e.DueAt.UnixMilli(), e.CreatedAt.UnixMilli(), e.OccurredAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) FindActiveByOwner(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE owner_id = ? ORDER BY due_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *sqliteStore) FindAllActive(ctx context.Context) ([]*reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderCols+` FROM reminders ORDER BY due_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *sqliteStore) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

func (s *sqliteStore) CountCreatedSince(ctx context.Context, ownerID int64, since time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	// Daily-created quota counts both still-active and already-archived
	// reminders created in the window. History rows carry the reminder's
	// creation instant so archiving an old reminder today does not count.
	var active, archived int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE owner_id = ? AND created_at >= ?`,
		ownerID, since.UnixMilli()).Scan(&active)
	if err != nil {
		return 0, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT reminder_id) FROM reminder_history
		 WHERE owner_id = ? AND created_at >= ? AND action != ?`,
		ownerID, since.UnixMilli(), string(reminder.ActionNotified)).Scan(&archived)
	if err != nil {
		return 0, err
	}
	return active + archived, nil
}

func (s *sqliteStore) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminder_history WHERE occurred_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) CountHistoryByAction(ctx context.Context, reminderID string, action reminder.Action) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder_history WHERE reminder_id = ? AND action = ?`,
		reminderID, string(action)).Scan(&n)
	return n, err
}

// ---- row mapping ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	var (
		r                                  reminder.Reminder
		due, created, updated              int64
		lastSent, snooze, recurEnd         sql.NullInt64
		status, priority, recurrence, tags string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ChatID, &r.Message, &due, &status,
		&r.SentCount, &r.MaxSent, &lastSent, &snooze, &priority, &r.Category,
		&tags, &r.Notes, &recurrence, &recurEnd, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.DueAt = time.UnixMilli(due)
	r.Status = reminder.Status(status)
	r.Priority = reminder.Priority(priority)
	r.Recurrence = reminder.Pattern(recurrence)
	r.Tags = splitTags(tags)
	if lastSent.Valid {
		r.LastSentAt = time.UnixMilli(lastSent.Int64)
	}
	if snooze.Valid {
		r.SnoozeUntil = time.UnixMilli(snooze.Int64)
	}
	if recurEnd.Valid {
		r.RecurrenceEnd = time.UnixMilli(recurEnd.Int64)
	}
	r.CreatedAt = time.UnixMilli(created)
	r.UpdatedAt = time.UnixMilli(updated)
	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	var out []*reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullMilli(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
