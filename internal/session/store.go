// Package session persists editing sessions in SQLite: the timeline model,
// the library with its decoded PCM, and the transport markers.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/timeline"
	"github.com/satindergrewal/mixdesk/internal/transport"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrLocked   = errors.New("session store is locked by another process")

	// ErrMissingItem means a saved clip points at an item the record lacks.
	ErrMissingItem = errors.New("clip references an item missing from the session")
)

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one saved session.
type Record struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Model     *timeline.Model
	Items     []*library.Item
	Markers   transport.Markers
	Document  *editor.Document
}

// Summary is the listing view of a record.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Clips     int       `json:"clips"`
	Items     int       `json:"items"`
	Length    float64   `json:"length"`
}

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
	log  *zap.Logger
}

// Open creates or connects to the database at path and applies migrations.
// The store holds an exclusive file lock at lockPath (path + ".lock" when
// empty) until Close.
func Open(path, lockPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure session dir: %w", err)
	}
	if lockPath == "" {
		lockPath = path + ".lock"
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path, lock: lock, log: log}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	log.Debug("session store opened", zap.String("path", path))
	return s, nil
}

// Close closes the database and releases the lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("release lock: %w", unlockErr)
	}
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Save inserts or replaces rec. An empty ID gets a new one; timestamps are
// set on rec.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Model == nil {
		return errors.New("session record has no model")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	modelJSON, err := json.Marshal(rec.Model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	markersJSON, err := json.Marshal(rec.Markers)
	if err != nil {
		return fmt.Errorf("marshal markers: %w", err)
	}
	var docJSON any
	if rec.Document != nil {
		data, err := json.Marshal(rec.Document)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		docJSON = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (
            id, name, created_at, updated_at, model_json, markers_json, document_json, clip_count, content_length
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name, updated_at = excluded.updated_at, model_json = excluded.model_json,
            markers_json = excluded.markers_json, document_json = excluded.document_json,
            clip_count = excluded.clip_count, content_length = excluded.content_length`,
		rec.ID,
		rec.Name,
		rec.CreatedAt.Format(timeFormat),
		rec.UpdatedAt.Format(timeFormat),
		string(modelJSON),
		string(markersJSON),
		docJSON,
		clipCount(rec.Model),
		rec.Model.MaxEndTime(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE session_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for i, item := range rec.Items {
		if item.Buffer == nil {
			return fmt.Errorf("item %s has no audio", item.ID)
		}
		peaks, err := json.Marshal(item.Peaks)
		if err != nil {
			return fmt.Errorf("marshal peaks: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items (
                session_id, item_id, ord, name, type, duration, sample_rate, channels, peaks_json, pcm
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, item.ID, i, item.Name, item.Type, item.Duration,
			item.Buffer.SampleRate, item.Buffer.Channels(), string(peaks), encodePCM(item.Buffer),
		)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.log.Info("session saved",
		zap.String("session", rec.ID),
		zap.String("name", rec.Name),
		zap.Int("items", len(rec.Items)))
	return nil
}

// Load reads a full record, PCM included.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	var (
		rec                    Record
		created, updated       string
		modelJSON, markersJSON string
		docJSON                sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at, model_json, markers_json, document_json
         FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &created, &updated, &modelJSON, &markersJSON, &docJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.Model = &timeline.Model{}
	if err := json.Unmarshal([]byte(modelJSON), rec.Model); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	if err := json.Unmarshal([]byte(markersJSON), &rec.Markers); err != nil {
		return nil, fmt.Errorf("unmarshal markers: %w", err)
	}
	if docJSON.Valid {
		rec.Document = &editor.Document{}
		if err := json.Unmarshal([]byte(docJSON.String), rec.Document); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
	}

	rec.Items, err = s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) loadItems(ctx context.Context, id string) ([]*library.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, name, type, duration, sample_rate, channels, peaks_json, pcm
         FROM items WHERE session_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*library.Item
	for rows.Next() {
		var (
			item           library.Item
			rate, channels int
			peaks          sql.NullString
			pcm            []byte
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Type, &item.Duration, &rate, &channels, &peaks, &pcm); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if peaks.Valid && peaks.String != "" && peaks.String != "null" {
			if err := json.Unmarshal([]byte(peaks.String), &item.Peaks); err != nil {
				return nil, fmt.Errorf("unmarshal peaks for %s: %w", item.ID, err)
			}
		}
		if item.Buffer, err = decodePCM(pcm, channels, rate); err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// List returns every session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, s.updated_at, s.clip_count, s.content_length,
                (SELECT COUNT(1) FROM items i WHERE i.session_id = s.id)
         FROM sessions s ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			updated string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &updated, &sum.Clips, &sum.Length, &sum.Items); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sum.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Delete removes a session and its items.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.log.Info("session deleted", zap.String("session", id))
	return nil
}

func clipCount(m *timeline.Model) int {
	n := 0
	for _, t := range m.Tracks {
		n += len(t.Clips)
	}
	return n
}
