package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lmoreau/paperquery/internal/core/domain"
)

// PaperRepository is the read path into paper metadata written by the
// external ingestion pipeline, including the author index the entity
// detector validates candidates against.
type PaperRepository struct {
	db *sql.DB
}

func NewPaperRepository(db *sql.DB) *PaperRepository {
	return &PaperRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PaperRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent service startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	// The trigram index keeps AuthorExists an index lookup: the author
	// filter is a case-insensitive substring match, which a btree
	// cannot serve.
	const query = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS papers (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	authors TEXT,
	year INTEGER,
	page_count INTEGER,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	indexed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_papers_status ON papers(status);
CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(year);
CREATE INDEX IF NOT EXISTS idx_papers_authors_trgm ON papers USING gin (authors gin_trgm_ops);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PaperRepository) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, COALESCE(authors, ''), COALESCE(year, 0), COALESCE(page_count, 0), chunk_count, status, indexed_at
FROM papers
WHERE id = $1
`, id)

	var paper domain.Paper
	var status string
	var indexedAt sql.NullTime

	err := row.Scan(
		&paper.ID, &paper.Title, &paper.Authors, &paper.Year,
		&paper.PageCount, &paper.ChunkCount, &status, &indexedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPaperNotFound, "get paper", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan paper: %w", err)
	}

	paper.Status = domain.PaperStatus(status)
	if indexedAt.Valid {
		paper.IndexedAt = &indexedAt.Time
	}
	return &paper, nil
}

func (r *PaperRepository) List(ctx context.Context, limit, offset int) ([]domain.Paper, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count papers: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, COALESCE(authors, ''), COALESCE(year, 0), COALESCE(page_count, 0), chunk_count, status, indexed_at
FROM papers
ORDER BY indexed_at DESC NULLS LAST, id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]domain.Paper, 0, limit)
	for rows.Next() {
		var paper domain.Paper
		var status string
		var indexedAt sql.NullTime
		if err := rows.Scan(
			&paper.ID, &paper.Title, &paper.Authors, &paper.Year,
			&paper.PageCount, &paper.ChunkCount, &status, &indexedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan paper row: %w", err)
		}
		paper.Status = domain.PaperStatus(status)
		if indexedAt.Valid {
			paper.IndexedAt = &indexedAt.Time
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate papers: %w", err)
	}
	return papers, total, nil
}

// AuthorExists reports whether any indexed paper's author field
// contains the candidate name, case-insensitively.
func (r *PaperRepository) AuthorExists(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}

	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM papers WHERE authors ILIKE $1)
`, "%"+escapeLike(name)+"%").Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("author lookup: %w", err)
	}
	return exists, nil
}

// escapeLike neutralizes LIKE metacharacters in a candidate name so it
// matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
