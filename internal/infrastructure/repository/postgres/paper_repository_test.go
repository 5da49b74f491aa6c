package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lmoreau/paperquery/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*PaperRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &PaperRepository{db: db}, mock, func() { _ = db.Close() }
}

func paperColumns() []string {
	return []string{"id", "title", "authors", "year", "page_count", "chunk_count", "status", "indexed_at"}
}

func TestGetByIDMapsRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	indexedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, title").
		WithArgs("paper-1").
		WillReturnRows(sqlmock.NewRows(paperColumns()).
			AddRow("paper-1", "A Study", "J. Smith", 2021, 12, 40, "indexed", indexedAt))

	paper, err := repo.GetByID(context.Background(), "paper-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if paper.Title != "A Study" || paper.Year != 2021 || paper.Status != domain.PaperStatusIndexed {
		t.Fatalf("paper mapping broken: %+v", paper)
	}
	if paper.IndexedAt == nil || !paper.IndexedAt.Equal(indexedAt) {
		t.Fatalf("indexed_at mapping broken: %v", paper.IndexedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrPaperNotFound) {
		t.Fatalf("expected ErrPaperNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListReturnsTotalAndRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM papers`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT id, title").
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows(paperColumns()).
			AddRow("p1", "First", "", 0, 0, 10, "indexed", nil).
			AddRow("p2", "Second", "Jones", 2022, 8, 5, "pending", nil))

	papers, total, err := repo.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 7 || len(papers) != 2 {
		t.Fatalf("List() = %d papers, total %d", len(papers), total)
	}
	if papers[0].IndexedAt != nil {
		t.Fatalf("null indexed_at mapped to %v", papers[0].IndexedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuthorExistsEscapesPattern(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(`%100\% smith%`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.AuthorExists(context.Background(), "100% smith")
	if err != nil {
		t.Fatalf("AuthorExists() error = %v", err)
	}
	if !exists {
		t.Fatalf("AuthorExists() = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuthorExistsEmptyNameShortCircuits(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	exists, err := repo.AuthorExists(context.Background(), "   ")
	if err != nil {
		t.Fatalf("AuthorExists() error = %v", err)
	}
	if exists {
		t.Fatalf("AuthorExists() = true for blank name")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
