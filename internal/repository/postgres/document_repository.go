package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studio-site/internal/domain"
	"studio-site/internal/observability"
)

const documentsPKey = "documents_pkey"

// DocumentRepository stores documents as JSONB rows keyed by (collection, id).
type DocumentRepository struct {
	db         *sql.DB
	tx         *TxManager
	createStmt *sql.Stmt
	getStmt    *sql.Stmt
	lockStmt   *sql.Stmt
	listStmt   *sql.Stmt
	updateStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewDocumentRepository creates a new DocumentRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewDocumentRepository(db *sql.DB) (*DocumentRepository, error) {
	repo := &DocumentRepository{db: db, tx: NewTxManager(db)}

	var err error
	repo.createStmt, err = db.Prepare(`
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getStmt, err = db.Prepare(`
		SELECT id, collection, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	repo.lockStmt, err = db.Prepare(`
		SELECT created_at FROM documents
		WHERE collection = $1 AND id = $2
		FOR UPDATE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare lock statement: %w", err)
	}

	repo.listStmt, err = db.Prepare(`
		SELECT id, collection, data, created_at, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY created_at DESC
		LIMIT $2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare list statement: %w", err)
	}

	repo.updateStmt, err = db.Prepare(`
		UPDATE documents SET data = $3, updated_at = $4
		WHERE collection = $1 AND id = $2
		RETURNING created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare update statement: %w", err)
	}

	repo.deleteStmt, err = db.Prepare(`DELETE FROM documents WHERE collection = $1 AND id = $2`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return repo, nil
}

func observe(operation, collection string, start time.Time) {
	observability.DBQueryDuration.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	defer observe("create", doc.Collection, time.Now())

	now := time.Now().UTC()
	_, err := r.createStmt.ExecContext(ctx, doc.Collection, doc.ID, []byte(doc.Data), now)
	if IsUniqueViolation(err, documentsPKey) {
		return domain.ErrDocumentExists
	}
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	defer observe("get", collection, time.Now())

	doc, err := scanDocument(r.getStmt.QueryRowContext(ctx, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, collection string, limit int) ([]*domain.Document, error) {
	defer observe("list", collection, time.Now())

	rows, err := r.listStmt.QueryContext(ctx, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	defer observe("update", doc.Collection, time.Now())

	now := time.Now().UTC()
	err := r.updateStmt.QueryRowContext(ctx, doc.Collection, doc.ID, []byte(doc.Data), now).Scan(&doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	doc.UpdatedAt = now
	return nil
}

// Upsert replaces the document, creating it if needed. The existing row is
// locked so created_at survives concurrent writers; a concurrent first insert
// is retried once as an update.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.Document) error {
	defer observe("upsert", doc.Collection, time.Now())

	err := r.upsertOnce(ctx, doc)
	if IsUniqueViolation(err, documentsPKey) {
		err = r.upsertOnce(ctx, doc)
	}
	return err
}

func (r *DocumentRepository) upsertOnce(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var createdAt time.Time
		err := tx.StmtContext(ctx, r.lockStmt).QueryRowContext(ctx, doc.Collection, doc.ID).Scan(&createdAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.StmtContext(ctx, r.createStmt).ExecContext(ctx, doc.Collection, doc.ID, []byte(doc.Data), now); err != nil {
				return fmt.Errorf("failed to insert document: %w", err)
			}
			createdAt = now
		case err != nil:
			return fmt.Errorf("failed to lock document: %w", err)
		default:
			if err := tx.StmtContext(ctx, r.updateStmt).QueryRowContext(ctx, doc.Collection, doc.ID, []byte(doc.Data), now).Scan(&createdAt); err != nil {
				return fmt.Errorf("failed to update document: %w", err)
			}
		}

		doc.CreatedAt = createdAt
		doc.UpdatedAt = now
		return nil
	})
}

func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	defer observe("delete", collection, time.Now())

	result, err := r.deleteStmt.ExecContext(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if count == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the prepared statements.
func (r *DocumentRepository) Close() error {
	for _, stmt := range []*sql.Stmt{r.createStmt, r.getStmt, r.lockStmt, r.listStmt, r.updateStmt, r.deleteStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc  domain.Document
		data []byte
	)
	if err := row.Scan(&doc.ID, &doc.Collection, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Data = data
	return &doc, nil
}
