package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CanonicalPair orders two person ids so an unordered edge has one key.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// AddRelationship records an unordered edge between two people. Adding an
// existing edge is a no-op.
func (s *Store) AddRelationship(ctx context.Context, personA, personB, kind string) (Relationship, error) {
	personA = strings.TrimSpace(personA)
	personB = strings.TrimSpace(personB)
	kind = strings.TrimSpace(kind)
	if personA == "" || personB == "" {
		return Relationship{}, errors.New("relationship requires two person ids")
	}
	if personA == personB {
		return Relationship{}, errors.New("relationship endpoints must differ")
	}
	if kind == "" {
		kind = "appears_with"
	}
	a, b := CanonicalPair(personA, personB)
	rel := Relationship{A: a, B: b, Kind: kind, CreatedAt: time.Now().UTC()}
	err := retryOnBusy(ensureContext(ctx), func() error {
		_, execErr := s.db.ExecContext(ensureContext(ctx),
			`INSERT OR IGNORE INTO person_relationships (person_a, person_b, kind, created_at) VALUES (?, ?, ?, ?)`,
			rel.A, rel.B, rel.Kind, formatTime(rel.CreatedAt),
		)
		return execErr
	})
	if err != nil {
		return Relationship{}, fmt.Errorf("add relationship: %w", err)
	}
	return rel, nil
}

// RemoveRelationship deletes an edge regardless of argument order.
func (s *Store) RemoveRelationship(ctx context.Context, personA, personB, kind string) error {
	a, b := CanonicalPair(strings.TrimSpace(personA), strings.TrimSpace(personB))
	err := retryOnBusy(ensureContext(ctx), func() error {
		_, execErr := s.db.ExecContext(ensureContext(ctx),
			`DELETE FROM person_relationships WHERE person_a = ? AND person_b = ? AND kind = ?`,
			a, b, kind,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("remove relationship: %w", err)
	}
	return nil
}

// Relationships lists the edges touching personID, or every edge when
// personID is empty.
func (s *Store) Relationships(ctx context.Context, personID string) ([]Relationship, error) {
	query := `SELECT person_a, person_b, kind, created_at FROM person_relationships`
	var args []any
	if personID != "" {
		query += ` WHERE person_a = ? OR person_b = ?`
		args = append(args, personID, personID)
	}
	query += ` ORDER BY person_a, person_b, kind`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var (
			rel   Relationship
			tsRaw string
		)
		if err := rows.Scan(&rel.A, &rel.B, &rel.Kind, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		if ts, err := parseTimeString(tsRaw); err == nil {
			rel.CreatedAt = ts
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}
