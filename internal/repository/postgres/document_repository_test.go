package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-site/internal/domain"
)

var (
	createQuery = regexp.QuoteMeta(`INSERT INTO documents (collection, id, data, created_at, updated_at)`)
	getQuery    = regexp.QuoteMeta(`SELECT id, collection, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`)
	lockQuery   = regexp.QuoteMeta(`SELECT created_at FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`)
	listQuery   = regexp.QuoteMeta(`WHERE collection = $1 ORDER BY created_at DESC LIMIT $2`)
	updateQuery = regexp.QuoteMeta(`UPDATE documents SET data = $3, updated_at = $4`)
	deleteQuery = regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)
)

var documentColumns = []string{"id", "collection", "data", "created_at", "updated_at"}

func setupDocumentRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(createQuery)
	mock.ExpectPrepare(getQuery)
	mock.ExpectPrepare(lockQuery)
	mock.ExpectPrepare(listQuery)
	mock.ExpectPrepare(updateQuery)
	mock.ExpectPrepare(deleteQuery)
}

func newMockRepository(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupDocumentRepositoryMocks(mock)

	repo, err := NewDocumentRepository(db)
	require.NoError(t, err)
	return repo, mock
}

func TestNewDocumentRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(createQuery)
		mock.ExpectPrepare(getQuery).WillReturnError(errors.New("prepare failed"))

		repo, err := NewDocumentRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare get statement")
	})
}

func TestDocumentRepository_Create(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(createQuery).
			WithArgs("services", "svc-1", []byte(`{"title":"Design"}`), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		doc := &domain.Document{ID: "svc-1", Collection: "services", Data: []byte(`{"title":"Design"}`)}
		require.NoError(t, repo.Create(context.Background(), doc))

		assert.False(t, doc.CreatedAt.IsZero())
		assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate_id", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(createQuery).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_pkey"})

		err := repo.Create(context.Background(), &domain.Document{ID: "svc-1", Collection: "services", Data: []byte(`{}`)})
		assert.ErrorIs(t, err, domain.ErrDocumentExists)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(createQuery).WillReturnError(sql.ErrConnDone)

		err := repo.Create(context.Background(), &domain.Document{ID: "svc-1", Collection: "services", Data: []byte(`{}`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create document")
	})
}

func TestDocumentRepository_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		mock.ExpectQuery(getQuery).
			WithArgs("projects", "p-1").
			WillReturnRows(sqlmock.NewRows(documentColumns).
				AddRow("p-1", "projects", []byte(`{"name":"Atlas"}`), created, created))

		doc, err := repo.Get(context.Background(), "projects", "p-1")
		require.NoError(t, err)
		assert.Equal(t, "p-1", doc.ID)
		assert.JSONEq(t, `{"name":"Atlas"}`, string(doc.Data))
		assert.Equal(t, created, doc.CreatedAt)
	})

	t.Run("not_found", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(getQuery).WillReturnError(sql.ErrNoRows)

		doc, err := repo.Get(context.Background(), "projects", "missing")
		assert.Nil(t, doc)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestDocumentRepository_List(t *testing.T) {
	t.Run("returns_rows_in_order", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		now := time.Now()

		mock.ExpectQuery(listQuery).
			WithArgs("testimonials", 10).
			WillReturnRows(sqlmock.NewRows(documentColumns).
				AddRow("t-2", "testimonials", []byte(`{}`), now, now).
				AddRow("t-1", "testimonials", []byte(`{}`), now.Add(-time.Hour), now))

		docs, err := repo.List(context.Background(), "testimonials", 10)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "t-2", docs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_collection_is_empty_slice", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(listQuery).WillReturnRows(sqlmock.NewRows(documentColumns))

		docs, err := repo.List(context.Background(), "testimonials", 10)
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("scan_error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(listQuery).
			WillReturnRows(sqlmock.NewRows(documentColumns).
				AddRow("t-1", "testimonials", []byte(`{}`), "not-a-time", time.Now()))

		_, err := repo.List(context.Background(), "testimonials", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to scan document")
	})
}

func TestDocumentRepository_Update(t *testing.T) {
	t.Run("keeps_created_at", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(updateQuery).
			WithArgs("services", "svc-1", []byte(`{"title":"New"}`), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

		doc := &domain.Document{ID: "svc-1", Collection: "services", Data: []byte(`{"title":"New"}`)}
		require.NoError(t, repo.Update(context.Background(), doc))
		assert.Equal(t, created, doc.CreatedAt)
		assert.True(t, doc.UpdatedAt.After(created))
	})

	t.Run("missing_document", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(updateQuery).WillReturnError(sql.ErrNoRows)

		err := repo.Update(context.Background(), &domain.Document{ID: "x", Collection: "services", Data: []byte(`{}`)})
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestDocumentRepository_Upsert(t *testing.T) {
	t.Run("inserts_when_absent", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs("settings", "site").WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(createQuery).
			WithArgs("settings", "site", []byte(`{"title":"Studio"}`), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		doc := &domain.Document{ID: "site", Collection: "settings", Data: []byte(`{"title":"Studio"}`)}
		require.NoError(t, repo.Upsert(context.Background(), doc))
		assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("updates_when_present", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
		mock.ExpectQuery(updateQuery).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
		mock.ExpectCommit()

		doc := &domain.Document{ID: "site", Collection: "settings", Data: []byte(`{}`)}
		require.NoError(t, repo.Upsert(context.Background(), doc))
		assert.Equal(t, created, doc.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries_after_concurrent_insert", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		created := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(createQuery).WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_pkey"})
		mock.ExpectRollback()

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
		mock.ExpectQuery(updateQuery).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
		mock.ExpectCommit()

		doc := &domain.Document{ID: "site", Collection: "settings", Data: []byte(`{}`)}
		require.NoError(t, repo.Upsert(context.Background(), doc))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls_back_on_error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.Upsert(context.Background(), &domain.Document{ID: "site", Collection: "settings", Data: []byte(`{}`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to lock document")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentRepository_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(deleteQuery).WithArgs("services", "svc-1").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "services", "svc-1"))
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(deleteQuery).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(context.Background(), "services", "svc-1"), domain.ErrDocumentNotFound)
	})
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS documents")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
