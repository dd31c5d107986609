package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crosswalk/internal/control/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// PostgresStore persists controls with pgx. Evidence rides along as a
// JSONB column: it is always read and written with its control, and the
// single-row write keeps the optimistic version check atomic.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, control *models.Control) error {
	evidence, err := json.Marshal(control.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO controls
			(id, name, description, owner, status, effectiveness_rating, evidence,
			 record_version, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(control.ID), control.Name, control.Description, control.Owner,
		control.Status, control.EffectivenessRating, evidence,
		control.RecordVersion, control.CreatedAt, control.LastUpdated,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert control: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, control *models.Control) error {
	evidence, err := json.Marshal(control.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE controls SET
			name = $2, description = $3, owner = $4, status = $5,
			effectiveness_rating = $6, evidence = $7,
			record_version = record_version + 1, last_updated = $8
		WHERE id = $1 AND record_version = $9`,
		uuid.UUID(control.ID), control.Name, control.Description, control.Owner,
		control.Status, control.EffectivenessRating, evidence,
		control.LastUpdated, control.RecordVersion,
	)
	if err != nil {
		return fmt.Errorf("update control: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or stale; one more read tells us which.
		if _, findErr := s.Find(ctx, control.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleVersion
	}
	control.RecordVersion++
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, controlID id.ControlID) (*models.Control, error) {
	row := s.pool.QueryRow(ctx, controlSelect+` WHERE id = $1`, uuid.UUID(controlID))
	return scanControl(row)
}

func (s *PostgresStore) FindMany(ctx context.Context, controlIDs []id.ControlID) ([]*models.Control, error) {
	ids := make([]uuid.UUID, 0, len(controlIDs))
	for _, cid := range controlIDs {
		ids = append(ids, uuid.UUID(cid))
	}
	rows, err := s.pool.Query(ctx, controlSelect+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("find controls: %w", err)
	}
	defer rows.Close()
	return scanControls(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Control, error) {
	rows, err := s.pool.Query(ctx, controlSelect+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	defer rows.Close()
	return scanControls(rows)
}

func (s *PostgresStore) Execute(ctx context.Context, controlID id.ControlID, validate func(*models.Control) error, mutate func(*models.Control)) (*models.Control, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin execute tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, controlSelect+` WHERE id = $1 FOR UPDATE`, uuid.UUID(controlID))
	control, err := scanControl(row)
	if err != nil {
		return nil, err
	}

	if err := validate(control); err != nil {
		return nil, err
	}
	mutate(control)
	control.RecordVersion++

	evidence, err := json.Marshal(control.Evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE controls SET
			name = $2, description = $3, owner = $4, status = $5,
			effectiveness_rating = $6, evidence = $7,
			record_version = $8, last_updated = $9
		WHERE id = $1`,
		uuid.UUID(control.ID), control.Name, control.Description, control.Owner,
		control.Status, control.EffectivenessRating, evidence,
		control.RecordVersion, control.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("persist executed mutation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit execute tx: %w", err)
	}
	return control, nil
}

const controlSelect = `
	SELECT id, name, description, owner, status, effectiveness_rating, evidence,
	       record_version, created_at, last_updated
	FROM controls`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanControl(row rowScanner) (*models.Control, error) {
	var c models.Control
	var u uuid.UUID
	var evidence []byte
	err := row.Scan(&u, &c.Name, &c.Description, &c.Owner, &c.Status,
		&c.EffectivenessRating, &evidence, &c.RecordVersion, &c.CreatedAt, &c.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan control: %w", err)
	}
	c.ID = id.ControlID(u)
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &c.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
	}
	return &c, nil
}

func scanControls(rows pgx.Rows) ([]*models.Control, error) {
	var out []*models.Control
	for rows.Next() {
		c, err := scanControl(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
