package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pthm-cable/garden/telemetry"
)

// SealedBloom is a row of the sealed archive.
type SealedBloom struct {
	ID           uuid.UUID
	Kind         string
	Tick         int64
	SimTime      float64
	Insight      float64
	Lifetime     float64
	Interactions int
	Pattern      []float64
	Nutrients    telemetry.NutrientSnapshot
	Stages       []string // stage names in the order entered
}

// Insight is one recorded insight_generated event.
type Insight struct {
	BloomID     uuid.UUID
	Kind        string
	Tick        int64
	SimTime     float64
	Score       float64
	Pattern     []float64
	Nutrients   telemetry.NutrientSnapshot
	Connections []uuid.UUID
}

// Sealed returns up to limit sealed blooms, highest insight first.
// A non-positive limit returns every row.
func (a *Archive) Sealed(ctx context.Context, limit int) ([]SealedBloom, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, tick, sim_time, insight, lifetime, interactions, pattern, nutrients, transitions
		FROM sealed_blooms
		ORDER BY insight DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sealed blooms: %w", err)
	}
	defer rows.Close()

	var out []SealedBloom
	for rows.Next() {
		var s SealedBloom
		var id, pattern, nutrients, trsJSON string
		if err := rows.Scan(&id, &s.Kind, &s.Tick, &s.SimTime, &s.Insight, &s.Lifetime,
			&s.Interactions, &pattern, &nutrients, &trsJSON); err != nil {
			return nil, fmt.Errorf("scan sealed bloom: %w", err)
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse sealed bloom id: %w", err)
		}

		var transitions []transitionJSON
		if err := unmarshalAll(pattern, &s.Pattern, nutrients, &s.Nutrients, trsJSON, &transitions); err != nil {
			return nil, fmt.Errorf("sealed bloom %s: %w", s.ID, err)
		}
		for _, tr := range transitions {
			s.Stages = append(s.Stages, tr.Stage)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Insights returns the insights generated by bloomID in tick order.
// uuid.Nil returns every insight.
func (a *Archive) Insights(ctx context.Context, bloomID uuid.UUID) ([]Insight, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	const cols = `SELECT bloom_id, kind, tick, sim_time, score, pattern, nutrients, connections FROM insights`
	if bloomID == uuid.Nil {
		rows, err = db.QueryContext(ctx, cols+` ORDER BY tick, seq`)
	} else {
		rows, err = db.QueryContext(ctx, cols+` WHERE bloom_id = ? ORDER BY tick, seq`, bloomID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		var in Insight
		var id, pattern, nutrients, conns string
		if err := rows.Scan(&id, &in.Kind, &in.Tick, &in.SimTime, &in.Score, &pattern, &nutrients, &conns); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if in.BloomID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse insight bloom id: %w", err)
		}
		if err := unmarshalAll(pattern, &in.Pattern, nutrients, &in.Nutrients, conns, &in.Connections); err != nil {
			return nil, fmt.Errorf("insight for %s: %w", in.BloomID, err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func unmarshalAll(pattern string, p *[]float64, nutrients string, n *telemetry.NutrientSnapshot, extra string, x any) error {
	if err := json.Unmarshal([]byte(pattern), p); err != nil {
		return fmt.Errorf("unmarshal pattern: %w", err)
	}
	if err := json.Unmarshal([]byte(nutrients), n); err != nil {
		return fmt.Errorf("unmarshal nutrients: %w", err)
	}
	if err := json.Unmarshal([]byte(extra), x); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}
