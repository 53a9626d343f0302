package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/semsphere/semsphere/curve"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/hash"
)

// SQLite is a Store backed by a SQLite database. It demonstrates the
// transactional relational collaborator: hash uniqueness per tier comes
// from primary keys, insert-if-absent from ON CONFLICT clauses, and the
// ordered cell column carries range scans.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS atoms (
	hash     TEXT PRIMARY KEY,
	origin   INTEGER NOT NULL,
	category TEXT NOT NULL,
	px REAL NOT NULL, py REAL NOT NULL, pz REAL NOT NULL, pw REAL NOT NULL,
	cell     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_atoms_cell ON atoms(cell);

CREATE TABLE IF NOT EXISTS compositions (
	hash         TEXT PRIMARY KEY,
	length       INTEGER NOT NULL,
	cx REAL NOT NULL, cy REAL NOT NULL, cz REAL NOT NULL, cw REAL NOT NULL,
	bounds       TEXT NOT NULL,
	path_length  REAL NOT NULL,
	display_text TEXT NOT NULL,
	qx REAL NOT NULL, qy REAL NOT NULL, qz REAL NOT NULL, qw REAL NOT NULL,
	cell         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compositions_cell ON compositions(cell);

CREATE TABLE IF NOT EXISTS composition_children (
	parent   TEXT NOT NULL,
	position INTEGER NOT NULL,
	child    TEXT NOT NULL,
	px REAL NOT NULL, py REAL NOT NULL, pz REAL NOT NULL, pw REAL NOT NULL,
	PRIMARY KEY (parent, position)
);

CREATE TABLE IF NOT EXISTS relations (
	hash        TEXT PRIMARY KEY,
	level       INTEGER NOT NULL,
	cx REAL NOT NULL, cy REAL NOT NULL, cz REAL NOT NULL, cw REAL NOT NULL,
	bounds      TEXT NOT NULL,
	path_length REAL NOT NULL,
	metadata    TEXT,
	cell        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relations_cell ON relations(cell);

CREATE TABLE IF NOT EXISTS relation_children (
	parent   TEXT NOT NULL,
	position INTEGER NOT NULL,
	kind     INTEGER NOT NULL,
	child    TEXT NOT NULL,
	PRIMARY KEY (parent, position)
);
CREATE INDEX IF NOT EXISTS idx_relation_children_child ON relation_children(child);

CREATE TABLE IF NOT EXISTS edges (
	source         TEXT NOT NULL,
	target         TEXT NOT NULL,
	edge_type      TEXT NOT NULL,
	rating         REAL NOT NULL,
	evidence_count INTEGER NOT NULL,
	last_updated   TIMESTAMP NOT NULL,
	PRIMARY KEY (source, target, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);

CREATE TABLE IF NOT EXISTS edge_observations (
	source     TEXT NOT NULL,
	target     TEXT NOT NULL,
	edge_type  TEXT NOT NULL,
	provenance TEXT NOT NULL,
	PRIMARY KEY (source, target, edge_type, provenance)
);

CREATE TABLE IF NOT EXISTS trajectories (
	relation_hash TEXT PRIMARY KEY,
	total         REAL NOT NULL,
	straight      REAL NOT NULL,
	tortuosity    REAL NOT NULL,
	dx REAL NOT NULL, dy REAL NOT NULL, dz REAL NOT NULL, dw REAL NOT NULL
);
`

// OpenSQLite opens (or creates) a SQLite store at path. Use ":memory:"
// for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	// WAL keeps readers unblocked by the ingestion writer.
	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// cellToInt converts a cell to the signed column value. Tags occupy the
// top bits below 63, so the cast is lossless.
func cellToInt(c curve.Cell) int64 { return int64(c) }

// PutAtom implements Store.
func (s *SQLite) PutAtom(ctx context.Context, a *entity.Atom) (bool, error) {
	if err := validateAtom(a); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO atoms (hash, origin, category, px, py, pz, pw, cell)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		a.Hash.String(), a.Origin, a.Category,
		a.Position[0], a.Position[1], a.Position[2], a.Position[3],
		cellToInt(a.Cell))
	if err != nil {
		return false, fmt.Errorf("store: put atom: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	existing, err := s.GetAtom(ctx, a.Hash)
	if err != nil {
		return true, err
	}
	return true, checkAtomConsistent(existing, a)
}

// GetAtom implements Store.
func (s *SQLite) GetAtom(ctx context.Context, h hash.Hash) (*entity.Atom, error) {
	a := &entity.Atom{Hash: h}
	var cell int64
	err := s.db.QueryRowContext(ctx, `
		SELECT origin, category, px, py, pz, pw, cell FROM atoms WHERE hash = ?`,
		h.String()).Scan(&a.Origin, &a.Category,
		&a.Position[0], &a.Position[1], &a.Position[2], &a.Position[3], &cell)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get atom: %w", err)
	}
	a.Cell = curve.Cell(cell)
	return a, nil
}

func (s *SQLite) existsIn(ctx context.Context, q sqlQuerier, table string, h hash.Hash) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE hash = ?`, h.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PutComposition implements Store.
func (s *SQLite) PutComposition(ctx context.Context, c *entity.Composition) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, child := range c.Children {
		ok, err := s.existsIn(ctx, tx, "atoms", child.Hash)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, &ErrDanglingReference{Kind: entity.KindAtom, Hash: child.Hash}
		}
	}

	bounds, err := json.Marshal(c.Bounds)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO compositions
			(hash, length, cx, cy, cz, cw, bounds, path_length, display_text, qx, qy, qz, qw, cell)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		c.Hash.String(), c.Length,
		c.Centroid[0], c.Centroid[1], c.Centroid[2], c.Centroid[3],
		string(bounds), c.PathLength, c.DisplayText,
		c.Point[0], c.Point[1], c.Point[2], c.Point[3],
		cellToInt(c.Cell))
	if err != nil {
		return false, fmt.Errorf("store: put composition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Row already present: verify content identity outside the tx.
		_ = tx.Rollback()
		existing, err := s.GetComposition(ctx, c.Hash)
		if err != nil {
			return true, err
		}
		return true, checkCompositionConsistent(existing, c)
	}

	for _, child := range c.Children {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO composition_children (parent, position, child, px, py, pz, pw)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Hash.String(), child.Position, child.Hash.String(),
			child.Point[0], child.Point[1], child.Point[2], child.Point[3]); err != nil {
			return false, fmt.Errorf("store: put composition child: %w", err)
		}
	}

	return false, tx.Commit()
}

// GetComposition implements Store.
func (s *SQLite) GetComposition(ctx context.Context, h hash.Hash) (*entity.Composition, error) {
	c := &entity.Composition{Hash: h}
	var bounds string
	var cell int64
	err := s.db.QueryRowContext(ctx, `
		SELECT length, cx, cy, cz, cw, bounds, path_length, display_text, qx, qy, qz, qw, cell
		FROM compositions WHERE hash = ?`, h.String()).Scan(
		&c.Length,
		&c.Centroid[0], &c.Centroid[1], &c.Centroid[2], &c.Centroid[3],
		&bounds, &c.PathLength, &c.DisplayText,
		&c.Point[0], &c.Point[1], &c.Point[2], &c.Point[3], &cell)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get composition: %w", err)
	}
	if err := json.Unmarshal([]byte(bounds), &c.Bounds); err != nil {
		return nil, err
	}
	c.Cell = curve.Cell(cell)

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, child, px, py, pz, pw
		FROM composition_children WHERE parent = ? ORDER BY position`, h.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cp entity.ChildPoint
		var childHex string
		if err := rows.Scan(&cp.Position, &childHex, &cp.Point[0], &cp.Point[1], &cp.Point[2], &cp.Point[3]); err != nil {
			return nil, err
		}
		if cp.Hash, err = hash.Parse(childHex); err != nil {
			return nil, err
		}
		c.Children = append(c.Children, cp)
	}
	return c, rows.Err()
}

// PutRelation implements Store.
func (s *SQLite) PutRelation(ctx context.Context, r *entity.Relation) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, child := range r.Children {
		var table string
		switch child.Kind {
		case entity.KindComposition:
			table = "compositions"
		case entity.KindRelation:
			table = "relations"
		default:
			return false, &ErrDanglingReference{Kind: child.Kind, Hash: child.Hash}
		}
		ok, err := s.existsIn(ctx, tx, table, child.Hash)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, &ErrDanglingReference{Kind: child.Kind, Hash: child.Hash}
		}
	}

	bounds, err := json.Marshal(r.Bounds)
	if err != nil {
		return false, err
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO relations (hash, level, cx, cy, cz, cw, bounds, path_length, metadata, cell)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		r.Hash.String(), r.Level,
		r.Centroid[0], r.Centroid[1], r.Centroid[2], r.Centroid[3],
		string(bounds), r.PathLength, string(meta), cellToInt(r.Cell))
	if err != nil {
		return false, fmt.Errorf("store: put relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		_ = tx.Rollback()
		existing, err := s.GetRelation(ctx, r.Hash)
		if err != nil {
			return true, err
		}
		return true, checkRelationConsistent(existing, r)
	}

	for _, child := range r.Children {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relation_children (parent, position, kind, child)
			VALUES (?, ?, ?, ?)`,
			r.Hash.String(), child.Position, uint8(child.Kind), child.Hash.String()); err != nil {
			return false, fmt.Errorf("store: put relation child: %w", err)
		}
	}

	return false, tx.Commit()
}

// GetRelation implements Store.
func (s *SQLite) GetRelation(ctx context.Context, h hash.Hash) (*entity.Relation, error) {
	r := &entity.Relation{Hash: h}
	var bounds, meta string
	var cell int64
	err := s.db.QueryRowContext(ctx, `
		SELECT level, cx, cy, cz, cw, bounds, path_length, metadata, cell
		FROM relations WHERE hash = ?`, h.String()).Scan(
		&r.Level,
		&r.Centroid[0], &r.Centroid[1], &r.Centroid[2], &r.Centroid[3],
		&bounds, &r.PathLength, &meta, &cell)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get relation: %w", err)
	}
	if err := json.Unmarshal([]byte(bounds), &r.Bounds); err != nil {
		return nil, err
	}
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, err
		}
	}
	r.Cell = curve.Cell(cell)

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, kind, child
		FROM relation_children WHERE parent = ? ORDER BY position`, h.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cr entity.ChildRef
		var kind uint8
		var childHex string
		if err := rows.Scan(&cr.Position, &kind, &childHex); err != nil {
			return nil, err
		}
		cr.Kind = entity.Kind(kind)
		if cr.Hash, err = hash.Parse(childHex); err != nil {
			return nil, err
		}
		r.Children = append(r.Children, cr)
	}
	return r, rows.Err()
}

// ParentsOf implements Store.
func (s *SQLite) ParentsOf(ctx context.Context, child hash.Hash) ([]hash.Hash, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT parent FROM relation_children WHERE child = ?`, child.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hash.Hash
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		h, err := hash.Parse(hex)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ScanCells implements Store.
func (s *SQLite) ScanCells(ctx context.Context, kind entity.Kind, lo, hi curve.Cell, limit int) ([]CellEntry, error) {
	var table string
	switch kind {
	case entity.KindAtom:
		table = "atoms"
	case entity.KindComposition:
		table = "compositions"
	case entity.KindRelation:
		table = "relations"
	default:
		return nil, fmt.Errorf("store: scan cells: unknown kind %v", kind)
	}

	q := `SELECT hash, cell FROM ` + table + ` WHERE cell BETWEEN ? AND ? ORDER BY cell`
	args := []any{cellToInt(lo), cellToInt(hi)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CellEntry
	for rows.Next() {
		var hex string
		var cell int64
		if err := rows.Scan(&hex, &cell); err != nil {
			return nil, err
		}
		h, err := hash.Parse(hex)
		if err != nil {
			return nil, err
		}
		out = append(out, CellEntry{Cell: curve.Cell(cell), Kind: kind, Hash: h})
	}
	return out, rows.Err()
}

func (s *SQLite) entityExists(ctx context.Context, q sqlQuerier, h hash.Hash) (bool, error) {
	for _, table := range []string{"atoms", "compositions", "relations"} {
		ok, err := s.existsIn(ctx, q, table, h)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// UpsertEdge implements Store.
func (s *SQLite) UpsertEdge(ctx context.Context, obs entity.Observation, update RatingFunc) (*entity.Edge, bool, error) {
	if err := validateObservation(obs); err != nil {
		return nil, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range []hash.Hash{obs.Source, obs.Target} {
		ok, err := s.entityExists(ctx, tx, h)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, &ErrDanglingReference{Kind: entity.KindUnknown, Hash: h}
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO edge_observations (source, target, edge_type, provenance)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		obs.Source.String(), obs.Target.String(), obs.Type, obs.Provenance)
	if err != nil {
		return nil, false, fmt.Errorf("store: record observation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		// Duplicate provenance: return current edge untouched.
		edge, err := s.scanEdge(ctx, tx, obs.Source, obs.Target, obs.Type)
		if err != nil {
			return nil, false, err
		}
		return edge, false, tx.Commit()
	}

	edge, err := s.scanEdge(ctx, tx, obs.Source, obs.Target, obs.Type)
	if errors.Is(err, ErrNotFound) {
		edge = &entity.Edge{
			Source: obs.Source,
			Target: obs.Target,
			Type:   obs.Type,
			Rating: entity.DefaultRating,
		}
		err = nil
	}
	if err != nil {
		return nil, false, err
	}

	edge.Rating = update(edge.Rating, obs.Strength)
	edge.EvidenceCount++
	edge.LastUpdated = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO edges (source, target, edge_type, rating, evidence_count, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, target, edge_type) DO UPDATE SET
			rating = excluded.rating,
			evidence_count = excluded.evidence_count,
			last_updated = excluded.last_updated`,
		edge.Source.String(), edge.Target.String(), edge.Type,
		edge.Rating, edge.EvidenceCount, edge.LastUpdated); err != nil {
		return nil, false, fmt.Errorf("store: upsert edge: %w", err)
	}

	return edge, true, tx.Commit()
}

func (s *SQLite) scanEdge(ctx context.Context, q sqlQuerier, source, target hash.Hash, edgeType string) (*entity.Edge, error) {
	e := &entity.Edge{Source: source, Target: target, Type: edgeType}
	err := q.QueryRowContext(ctx, `
		SELECT rating, evidence_count, last_updated
		FROM edges WHERE source = ? AND target = ? AND edge_type = ?`,
		source.String(), target.String(), edgeType).Scan(
		&e.Rating, &e.EvidenceCount, &e.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetEdge implements Store.
func (s *SQLite) GetEdge(ctx context.Context, source, target hash.Hash, edgeType string) (*entity.Edge, error) {
	return s.scanEdge(ctx, s.db, source, target, edgeType)
}

// EdgesFrom implements Store.
func (s *SQLite) EdgesFrom(ctx context.Context, source hash.Hash, edgeType string) ([]*entity.Edge, error) {
	q := `SELECT target, edge_type, rating, evidence_count, last_updated
		FROM edges WHERE source = ?`
	args := []any{source.String()}
	if edgeType != "" {
		q += ` AND edge_type = ?`
		args = append(args, edgeType)
	}
	q += ` ORDER BY rating DESC, target ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Edge
	for rows.Next() {
		e := &entity.Edge{Source: source}
		var targetHex string
		if err := rows.Scan(&targetHex, &e.Type, &e.Rating, &e.EvidenceCount, &e.LastUpdated); err != nil {
			return nil, err
		}
		if e.Target, err = hash.Parse(targetHex); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutTrajectory implements Store.
func (s *SQLite) PutTrajectory(ctx context.Context, t *entity.Trajectory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trajectories (relation_hash, total, straight, tortuosity, dx, dy, dz, dw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(relation_hash) DO UPDATE SET
			total = excluded.total,
			straight = excluded.straight,
			tortuosity = excluded.tortuosity,
			dx = excluded.dx, dy = excluded.dy, dz = excluded.dz, dw = excluded.dw`,
		t.Relation.String(), t.TotalPathLength, t.StraightLine, t.Tortuosity,
		t.DominantDirection[0], t.DominantDirection[1], t.DominantDirection[2], t.DominantDirection[3])
	return err
}

// GetTrajectory implements Store.
func (s *SQLite) GetTrajectory(ctx context.Context, relation hash.Hash) (*entity.Trajectory, error) {
	t := &entity.Trajectory{Relation: relation}
	err := s.db.QueryRowContext(ctx, `
		SELECT total, straight, tortuosity, dx, dy, dz, dw
		FROM trajectories WHERE relation_hash = ?`, relation.String()).Scan(
		&t.TotalPathLength, &t.StraightLine, &t.Tortuosity,
		&t.DominantDirection[0], &t.DominantDirection[1], &t.DominantDirection[2], &t.DominantDirection[3])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Counts implements Store.
func (s *SQLite) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"atoms", &c.Atoms},
		{"compositions", &c.Compositions},
		{"relations", &c.Relations},
		{"edges", &c.Edges},
		{"edge_observations", &c.Observations},
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}
