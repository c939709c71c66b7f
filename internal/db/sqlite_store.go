package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/soaringjerry/Pictopercept/internal/api"
)

// SQLiteStore keeps every collection in one documents table; a document is
// its collection name, the participant id it belongs to and a JSON body.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

// InsertMany writes a batch in one transaction.
func (s *SQLiteStore) InsertMany(ctx context.Context, collection string, docs []api.Document) (err error) {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if err != nil {
			s.logErr("rollback insert", tx.Rollback())
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (collection, participant_id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, d := range docs {
		if _, err = stmt.ExecContext(ctx, collection, d.ParticipantID, string(d.Body)); err != nil {
			s.logErr("insert into "+collection, err)
			return fmt.Errorf("insert into %s: %w", collection, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func scanDocuments(rows *sql.Rows) ([]api.Document, error) {
	defer rows.Close()
	var out []api.Document
	for rows.Next() {
		var (
			d    api.Document
			body string
		)
		if err := rows.Scan(&d.ID, &d.ParticipantID, &body); err != nil {
			return nil, err
		}
		d.Body = []byte(body)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindPage(ctx context.Context, collection string, skip, limit int) ([]api.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, participant_id, body FROM documents WHERE collection = ? ORDER BY id LIMIT ? OFFSET ?`,
		collection, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return scanDocuments(rows)
}

// AggregateJoin pages over the left collection and attaches, per left
// document, the right documents with the same participant id.
func (s *SQLiteStore) AggregateJoin(ctx context.Context, left, right string, skip, limit int) ([]api.JoinedDocument, error) {
	lefts, err := s.FindPage(ctx, left, skip, limit)
	if err != nil {
		return nil, err
	}
	if len(lefts) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(lefts))
	args := []any{right}
	seen := map[string]bool{}
	for _, l := range lefts {
		if seen[l.ParticipantID] {
			continue
		}
		seen[l.ParticipantID] = true
		ids = append(ids, "?")
		args = append(args, l.ParticipantID)
	}
	q := `SELECT id, participant_id, body FROM documents WHERE collection = ? AND participant_id IN (` +
		strings.Join(ids, ",") + `) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("join %s with %s: %w", left, right, err)
	}
	rights, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("join %s with %s: %w", left, right, err)
	}
	byParticipant := map[string][]api.Document{}
	for _, r := range rights {
		byParticipant[r.ParticipantID] = append(byParticipant[r.ParticipantID], r)
	}

	out := make([]api.JoinedDocument, 0, len(lefts))
	for _, l := range lefts {
		out = append(out, api.JoinedDocument{Left: l, Right: byParticipant[l.ParticipantID]})
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ api.Store = (*SQLiteStore)(nil)
