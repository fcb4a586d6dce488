// Package archive persists sealed blooms and insights to SQLite.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pthm-cable/garden/components"
	"github.com/pthm-cable/garden/telemetry"
)

//go:embed schema.sql
var schemaSQL string

// ErrClosed is returned by queries on a closed archive.
var ErrClosed = errors.New("archive closed")

// Archive is a telemetry.Sink that stores entity_sealed and
// insight_generated events. Other events are ignored.
type Archive struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
	err    error // first write failure
	logger *slog.Logger
}

// Open creates or opens the archive database at path.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	return &Archive{db: db, logger: logger}, nil
}

// Emit implements telemetry.Sink. Write failures are logged and kept for Err.
func (a *Archive) Emit(e telemetry.Event) {
	var err error
	switch {
	case e.Kind == telemetry.EventSealed && e.Seal != nil:
		err = a.insertSealed(context.Background(), e)
	case e.Kind == telemetry.EventInsight && e.Insight != nil:
		err = a.insertInsight(context.Background(), e)
	default:
		return
	}
	if err != nil {
		a.logger.Warn("archive write failed", "event", e.Kind.String(), "bloom", e.BloomID, "error", err)
		a.mu.Lock()
		if a.err == nil {
			a.err = err
		}
		a.mu.Unlock()
	}
}

// Err returns the first write failure, if any.
func (a *Archive) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Close closes the database. Closing twice is a no-op.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// conn returns the database, or ErrClosed.
func (a *Archive) conn() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.db, nil
}

type transitionJSON struct {
	Stage string  `json:"stage"`
	At    float64 `json:"at"`
}

func (a *Archive) insertSealed(ctx context.Context, e telemetry.Event) error {
	db, err := a.conn()
	if err != nil {
		return err
	}

	transitions := make([]transitionJSON, len(e.Seal.Transitions))
	for i, tr := range e.Seal.Transitions {
		transitions[i] = transitionJSON{Stage: tr.Stage.String(), At: tr.At}
	}
	pattern, nutrients, trs, err := marshalAll(e.Seal.Pattern, e.Seal.Nutrients, transitions)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sealed_blooms
			(id, kind, tick, sim_time, insight, lifetime, interactions, pattern, nutrients, transitions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BloomID.String(), e.BloomKind.String(), e.Tick, e.Time,
		e.Seal.Insight, e.Seal.Lifetime, e.Seal.Interactions,
		pattern, nutrients, trs,
	)
	if err != nil {
		return fmt.Errorf("insert sealed bloom: %w", err)
	}
	return nil
}

func (a *Archive) insertInsight(ctx context.Context, e telemetry.Event) error {
	db, err := a.conn()
	if err != nil {
		return err
	}

	connections := e.Insight.Connections
	if connections == nil {
		connections = []uuid.UUID{}
	}
	pattern, nutrients, conns, err := marshalAll(e.Insight.Pattern, e.Insight.Nutrients, connections)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO insights
			(bloom_id, kind, tick, sim_time, score, pattern, nutrients, connections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BloomID.String(), e.BloomKind.String(), e.Tick, e.Time,
		e.Insight.Score, pattern, nutrients, conns,
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

func marshalAll(pattern components.Pattern, nutrients telemetry.NutrientSnapshot, extra any) (string, string, string, error) {
	p, err := json.Marshal(pattern)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal pattern: %w", err)
	}
	n, err := json.Marshal(nutrients)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal nutrients: %w", err)
	}
	x, err := json.Marshal(extra)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal record: %w", err)
	}
	return string(p), string(n), string(x), nil
}
