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

	"crosswalk/internal/crosswalk/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// PostgresStore persists mappings with pgx. Links ride along as JSONB:
// they are always read and written with their mapping, which keeps the
// optimistic version check a single-row write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, mapping *models.Mapping) error {
	links, err := json.Marshal(mapping.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mappings
			(id, requirement_id, links, coverage_score, status,
			 not_applicable, not_applicable_reason, flagged_for_review,
			 record_version, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(mapping.ID), uuid.UUID(mapping.RequirementID), links,
		mapping.CoverageScore, mapping.Status, mapping.NotApplicable,
		mapping.NotApplicableReason, mapping.FlaggedForReview,
		mapping.RecordVersion, mapping.CreatedAt, mapping.LastUpdated,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, mapping *models.Mapping) error {
	links, err := json.Marshal(mapping.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mappings SET
			links = $2, coverage_score = $3, status = $4,
			not_applicable = $5, not_applicable_reason = $6,
			flagged_for_review = $7,
			record_version = record_version + 1, last_updated = $8
		WHERE id = $1 AND record_version = $9`,
		uuid.UUID(mapping.ID), links, mapping.CoverageScore, mapping.Status,
		mapping.NotApplicable, mapping.NotApplicableReason,
		mapping.FlaggedForReview, mapping.LastUpdated, mapping.RecordVersion,
	)
	if err != nil {
		return fmt.Errorf("update mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := s.Find(ctx, mapping.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleVersion
	}
	mapping.RecordVersion++
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, mappingID id.MappingID) (*models.Mapping, error) {
	row := s.pool.QueryRow(ctx, mappingSelect+` WHERE id = $1`, uuid.UUID(mappingID))
	return scanMapping(row)
}

func (s *PostgresStore) ListByRequirement(ctx context.Context, requirementID id.RequirementID) ([]*models.Mapping, error) {
	rows, err := s.pool.Query(ctx, mappingSelect+` WHERE requirement_id = $1 ORDER BY created_at`,
		uuid.UUID(requirementID))
	if err != nil {
		return nil, fmt.Errorf("list mappings by requirement: %w", err)
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (s *PostgresStore) ListByControl(ctx context.Context, controlID id.ControlID) ([]*models.Mapping, error) {
	rows, err := s.pool.Query(ctx, mappingSelect+`
		WHERE links @> $1 ORDER BY created_at`,
		fmt.Sprintf(`[{"control_id": %q}]`, controlID.String()))
	if err != nil {
		return nil, fmt.Errorf("list mappings by control: %w", err)
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Mapping, error) {
	rows, err := s.pool.Query(ctx, mappingSelect+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (s *PostgresStore) Execute(ctx context.Context, mappingID id.MappingID, validate func(*models.Mapping) error, mutate func(*models.Mapping)) (*models.Mapping, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin execute tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, mappingSelect+` WHERE id = $1 FOR UPDATE`, uuid.UUID(mappingID))
	mapping, err := scanMapping(row)
	if err != nil {
		return nil, err
	}

	if err := validate(mapping); err != nil {
		return nil, err
	}
	mutate(mapping)
	mapping.RecordVersion++

	links, err := json.Marshal(mapping.Links)
	if err != nil {
		return nil, fmt.Errorf("marshal links: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE mappings SET
			links = $2, coverage_score = $3, status = $4,
			not_applicable = $5, not_applicable_reason = $6,
			flagged_for_review = $7, record_version = $8, last_updated = $9
		WHERE id = $1`,
		uuid.UUID(mapping.ID), links, mapping.CoverageScore, mapping.Status,
		mapping.NotApplicable, mapping.NotApplicableReason,
		mapping.FlaggedForReview, mapping.RecordVersion, mapping.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("persist executed mutation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit execute tx: %w", err)
	}
	return mapping, nil
}

const mappingSelect = `
	SELECT id, requirement_id, links, coverage_score, status,
	       not_applicable, not_applicable_reason, flagged_for_review,
	       record_version, created_at, last_updated
	FROM mappings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*models.Mapping, error) {
	var m models.Mapping
	var mid, rid uuid.UUID
	var links []byte
	err := row.Scan(&mid, &rid, &links, &m.CoverageScore, &m.Status,
		&m.NotApplicable, &m.NotApplicableReason, &m.FlaggedForReview,
		&m.RecordVersion, &m.CreatedAt, &m.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan mapping: %w", err)
	}
	m.ID = id.MappingID(mid)
	m.RequirementID = id.RequirementID(rid)
	if len(links) > 0 {
		if err := json.Unmarshal(links, &m.Links); err != nil {
			return nil, fmt.Errorf("decode links: %w", err)
		}
	}
	return &m, nil
}

func scanMappings(rows pgx.Rows) ([]*models.Mapping, error) {
	var out []*models.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
