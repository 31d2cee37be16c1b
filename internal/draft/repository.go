package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Draft, error)
	Save(ctx context.Context, d *Draft) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Draft, error) {
	query := `SELECT id, form, site_id, list_id, item_id, stamps, status, created_at, updated_at FROM drafts WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var d Draft
	var formJSON, stampsJSON []byte

	err := row.Scan(
		&d.ID,
		&formJSON,
		&d.SiteID,
		&d.ListID,
		&d.ItemID,
		&stampsJSON,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(formJSON) > 0 {
		if err := json.Unmarshal(formJSON, &d.Form); err != nil {
			return nil, fmt.Errorf("failed to unmarshal form: %w", err)
		}
	}
	if len(stampsJSON) > 0 {
		if err := json.Unmarshal(stampsJSON, &d.Stamps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stamps: %w", err)
		}
	}

	return &d, nil
}

func (r *postgresRepo) Save(ctx context.Context, d *Draft) error {
	formJSON, err := json.Marshal(d.Form)
	if err != nil {
		return err
	}
	stampsJSON, err := json.Marshal(d.Stamps)
	if err != nil {
		return err
	}

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.UpdatedAt = time.Now()

	query := `
		INSERT INTO drafts (id, form, site_id, list_id, item_id, stamps, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			form = $2,
			site_id = $3,
			list_id = $4,
			item_id = $5,
			stamps = $6,
			status = $7,
			updated_at = $9
	`
	_, err = r.db.ExecContext(ctx, query,
		d.ID, formJSON, d.SiteID, d.ListID, d.ItemID, stampsJSON, d.Status, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *postgresRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// memoryRepo keeps drafts in process memory. Drafts are copied in and out
// so callers never share state with the store.
type memoryRepo struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID][]byte
}

// NewMemoryRepository returns a repository for running without a database.
func NewMemoryRepository() Repository {
	return &memoryRepo{drafts: make(map[uuid.UUID][]byte)}
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Draft, error) {
	r.mu.RLock()
	data, ok := r.drafts[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &d, nil
}

func (r *memoryRepo) Save(_ context.Context, d *Draft) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.drafts[d.ID] = data
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drafts[id]; !ok {
		return ErrNotFound
	}
	delete(r.drafts, id)
	return nil
}
