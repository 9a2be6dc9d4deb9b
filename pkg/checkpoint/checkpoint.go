// Package checkpoint provides SQLite-backed durable storage for completed
// turns. Saves are idempotent per turn ID so a retried persistence step can
// never duplicate a record.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"conductor/pkg/faults"
	"conductor/pkg/logx"
	"conductor/pkg/proto"
)

// CurrentSchemaVersion defines the schema version for migration support.
const CurrentSchemaVersion = 1

// Record is the durable form of a finished turn.
type Record struct {
	TurnID      string          `json:"turn_id"`
	UserID      string          `json:"user_id"`
	SessionID   string          `json:"session_id"`
	Input       string          `json:"input"`
	Response    string          `json:"response"`
	History     []proto.Message `json:"history"`
	Status      proto.State     `json:"status"`
	Rounds      int             `json:"rounds"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Store manages the checkpoint database connection.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping checkpoint database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("checkpoint")
	logger.Info("Checkpoint store opened: %s", path)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint database: %w", err)
	}
	return nil
}

// Save persists a finished turn. The first write for a turn ID wins;
// repeated saves with the same turn ID succeed without changing the stored
// record. Database failures are transient (a locked file clears on retry);
// callers run Save under the shared resilience policy and treat exhaustion
// as a checkpoint fault.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.TurnID == "" {
		return faults.New(faults.KindCheckpoint, "checkpoint record missing turn ID")
	}

	history, err := json.Marshal(rec.History)
	if err != nil {
		return faults.Wrap(faults.KindCheckpoint, err, "failed to encode turn history")
	}

	query := `
		INSERT INTO turns (
			turn_id, user_id, session_id, input, response, history,
			status, rounds, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		rec.TurnID, rec.UserID, rec.SessionID, rec.Input, rec.Response,
		string(history), string(rec.Status), rec.Rounds,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return faults.Wrap(faults.KindTransient, err, fmt.Sprintf("failed to save turn %s", rec.TurnID))
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("Turn %s already checkpointed, save is a no-op", rec.TurnID)
	}

	return nil
}

// Get retrieves a checkpointed turn by ID. The second return value is false
// when no record exists.
func (s *Store) Get(ctx context.Context, turnID string) (*Record, bool, error) {
	query := `
		SELECT turn_id, user_id, session_id, input, response, history,
		       status, rounds, created_at, completed_at
		FROM turns WHERE turn_id = ?
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, turnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, faults.Wrap(faults.KindCheckpoint, err, fmt.Sprintf("failed to load turn %s", turnID))
	}

	return rec, true, nil
}

// BySession returns all checkpointed turns for a session, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]*Record, error) {
	query := `
		SELECT turn_id, user_id, session_id, input, response, history,
		       status, rounds, created_at, completed_at
		FROM turns WHERE session_id = ? ORDER BY completed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindCheckpoint, err, fmt.Sprintf("failed to query session %s", sessionID))
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, faults.Wrap(faults.KindCheckpoint, err, "failed to scan turn row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.KindCheckpoint, err, "failed to iterate turn rows")
	}

	return records, nil
}

// Count returns the number of checkpointed turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns").Scan(&n); err != nil {
		return 0, faults.Wrap(faults.KindCheckpoint, err, "failed to count turns")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                  Record
		history              string
		status               string
		createdAt, completed string
	)
	if err := row.Scan(
		&rec.TurnID, &rec.UserID, &rec.SessionID, &rec.Input, &rec.Response,
		&history, &status, &rec.Rounds, &createdAt, &completed,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		return nil, fmt.Errorf("failed to decode turn history: %w", err)
	}
	rec.Status = proto.State(status)

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rec.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
		return nil, fmt.Errorf("failed to parse completed_at: %w", err)
	}

	return &rec, nil
}
