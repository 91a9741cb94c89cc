package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ParentRepository handles parent segment persistence.
type ParentRepository struct {
	db DB
}

// NewParentRepository creates a new parent repository.
func NewParentRepository(db DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// Create inserts a parent segment.
func (r *ParentRepository) Create(ctx context.Context, parent *ParentSegment) error {
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO parent_segments (parent_id, document_id, title, level,
			hierarchy_path, page_start, page_end, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		parent.ParentID, parent.DocumentID, parent.Title, parent.Level,
		parent.HierarchyPath, parent.PageStart, parent.PageEnd,
		parent.Content, parent.CreatedAt,
	)
	return err
}

// GetByID retrieves a parent segment by its id.
func (r *ParentRepository) GetByID(ctx context.Context, parentID string) (*ParentSegment, error) {
	query := `
		SELECT parent_id, document_id, title, level, hierarchy_path,
			page_start, page_end, content, created_at
		FROM parent_segments WHERE parent_id = $1
	`
	parent := &ParentSegment{}
	err := r.db.QueryRowContext(ctx, query, parentID).Scan(
		&parent.ParentID, &parent.DocumentID, &parent.Title, &parent.Level,
		&parent.HierarchyPath, &parent.PageStart, &parent.PageEnd,
		&parent.Content, &parent.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return parent, err
}

// ListByDocument lists a document's parents in page order.
func (r *ParentRepository) ListByDocument(ctx context.Context, documentID string) ([]*ParentSegment, error) {
	query := `
		SELECT parent_id, document_id, title, level, hierarchy_path,
			page_start, page_end, content, created_at
		FROM parent_segments
		WHERE document_id = $1
		ORDER BY page_start, parent_id
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parents []*ParentSegment
	for rows.Next() {
		parent := &ParentSegment{}
		if err := rows.Scan(
			&parent.ParentID, &parent.DocumentID, &parent.Title, &parent.Level,
			&parent.HierarchyPath, &parent.PageStart, &parent.PageEnd,
			&parent.Content, &parent.CreatedAt,
		); err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	return parents, rows.Err()
}

// CountByDocument counts a document's parents.
func (r *ParentRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parent_segments WHERE document_id = $1`, documentID,
	).Scan(&count)
	return count, err
}

// DeleteByDocument removes all parents of a document.
func (r *ParentRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM parent_segments WHERE document_id = $1`, documentID,
	)
	return err
}

// ChildRepository handles child passage persistence. Child rows back
// the in-memory lexical index so it can be rebuilt on startup.
type ChildRepository struct {
	db DB
}

// NewChildRepository creates a new child repository.
func NewChildRepository(db DB) *ChildRepository {
	return &ChildRepository{db: db}
}

// Create inserts a child passage.
func (r *ChildRepository) Create(ctx context.Context, child *ChildPassage) error {
	if child.CreatedAt.IsZero() {
		child.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO child_passages (document_id, chunk_id, parent_id, text, raw_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		child.DocumentID, child.ChunkID, child.ParentID,
		child.Text, child.RawText, child.CreatedAt,
	)
	return err
}

// Get retrieves one passage by document and chunk id.
func (r *ChildRepository) Get(ctx context.Context, documentID string, chunkID int) (*ChildPassage, error) {
	query := `
		SELECT document_id, chunk_id, parent_id, text, raw_text, created_at
		FROM child_passages WHERE document_id = $1 AND chunk_id = $2
	`
	child := &ChildPassage{}
	err := r.db.QueryRowContext(ctx, query, documentID, chunkID).Scan(
		&child.DocumentID, &child.ChunkID, &child.ParentID,
		&child.Text, &child.RawText, &child.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return child, err
}

// ListByDocument lists a document's passages in chunk order.
func (r *ChildRepository) ListByDocument(ctx context.Context, documentID string) ([]*ChildPassage, error) {
	query := `
		SELECT document_id, chunk_id, parent_id, text, raw_text, created_at
		FROM child_passages
		WHERE document_id = $1
		ORDER BY chunk_id
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChildren(rows)
}

// ListAll lists every passage in the corpus, ordered by document and
// chunk. Used to rebuild the lexical index at startup.
func (r *ChildRepository) ListAll(ctx context.Context) ([]*ChildPassage, error) {
	query := `
		SELECT document_id, chunk_id, parent_id, text, raw_text, created_at
		FROM child_passages
		ORDER BY document_id, chunk_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChildren(rows)
}

// DeleteByDocument removes all passages of a document.
func (r *ChildRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM child_passages WHERE document_id = $1`, documentID,
	)
	return err
}

func scanChildren(rows *sql.Rows) ([]*ChildPassage, error) {
	var children []*ChildPassage
	for rows.Next() {
		child := &ChildPassage{}
		if err := rows.Scan(
			&child.DocumentID, &child.ChunkID, &child.ParentID,
			&child.Text, &child.RawText, &child.CreatedAt,
		); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

// Repositories bundles all repositories together.
type Repositories struct {
	Parents  *ParentRepository
	Children *ChildRepository
}

// NewRepositories creates all repositories with the given database connection.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Parents:  NewParentRepository(db),
		Children: NewChildRepository(db),
	}
}

func childKey(documentID string, chunkID int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkID)
}
