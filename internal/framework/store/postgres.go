package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crosswalk/internal/framework/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// PostgresStore persists framework records with pgx. Requirements are
// append-only rows; published versions are never updated except for the
// status column moving forward.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveFramework(ctx context.Context, framework *models.Framework) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO frameworks (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.UUID(framework.ID), framework.Name, framework.Description, framework.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert framework: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindFramework(ctx context.Context, frameworkID id.FrameworkID) (*models.Framework, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at
		FROM frameworks WHERE id = $1`, uuid.UUID(frameworkID))
	return scanFramework(row)
}

func (s *PostgresStore) ListFrameworks(ctx context.Context) ([]*models.Framework, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, created_at
		FROM frameworks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list frameworks: %w", err)
	}
	defer rows.Close()

	var out []*models.Framework
	for rows.Next() {
		f, err := scanFramework(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PublishVersion(ctx context.Context, version *models.FrameworkVersion, requirements []*models.Requirement, superseded *id.VersionID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if superseded != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE framework_versions SET status = $1
			WHERE id = $2 AND status = $3`,
			models.VersionStatusSuperseded, uuid.UUID(*superseded), models.VersionStatusActive,
		)
		if err != nil {
			return fmt.Errorf("supersede prior version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrInvalidState
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO framework_versions
			(id, framework_id, label, status, effective_date, sunset_date, sequence, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(version.ID), uuid.UUID(version.FrameworkID), version.Label, version.Status,
		version.EffectiveDate, version.SunsetDate, version.Sequence, version.PublishedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	for _, r := range requirements {
		var supersedes *uuid.UUID
		if r.Supersedes != nil {
			u := uuid.UUID(*r.Supersedes)
			supersedes = &u
		}
		related := make([]uuid.UUID, 0, len(r.RelatedRequirements))
		for _, rr := range r.RelatedRequirements {
			related = append(related, uuid.UUID(rr))
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO requirements
				(id, framework_id, version_id, section_code, requirement_text, category,
				 risk_level, keywords, implementation_guidance, evidence_examples,
				 supersedes, related_requirements, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			uuid.UUID(r.ID), uuid.UUID(r.FrameworkID), uuid.UUID(r.VersionID),
			r.SectionCode, r.Text, r.Category, r.RiskLevel,
			r.Keywords, r.ImplementationGuidance, r.EvidenceExamples,
			supersedes, related, r.CreatedAt,
		)
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert requirement %s: %w", r.SectionCode, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) FindVersion(ctx context.Context, versionID id.VersionID) (*models.FrameworkVersion, error) {
	row := s.pool.QueryRow(ctx, versionSelect+` WHERE id = $1`, uuid.UUID(versionID))
	return scanVersion(row)
}

func (s *PostgresStore) ActiveVersion(ctx context.Context, frameworkID id.FrameworkID) (*models.FrameworkVersion, error) {
	row := s.pool.QueryRow(ctx, versionSelect+` WHERE framework_id = $1 AND status = $2`,
		uuid.UUID(frameworkID), models.VersionStatusActive)
	return scanVersion(row)
}

func (s *PostgresStore) ListVersions(ctx context.Context, frameworkID id.FrameworkID) ([]*models.FrameworkVersion, error) {
	rows, err := s.pool.Query(ctx, versionSelect+` WHERE framework_id = $1 ORDER BY sequence`,
		uuid.UUID(frameworkID))
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []*models.FrameworkVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindRequirement(ctx context.Context, requirementID id.RequirementID) (*models.Requirement, error) {
	row := s.pool.QueryRow(ctx, requirementSelect+` WHERE id = $1`, uuid.UUID(requirementID))
	return scanRequirement(row)
}

func (s *PostgresStore) RequirementsByVersion(ctx context.Context, versionID id.VersionID) ([]*models.Requirement, error) {
	rows, err := s.pool.Query(ctx, requirementSelect+` WHERE version_id = $1 ORDER BY section_code`,
		uuid.UUID(versionID))
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()

	var out []*models.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) OrphanedRequirements(ctx context.Context) ([]id.RequirementID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id FROM requirements r
		LEFT JOIN framework_versions v ON v.id = r.version_id
		WHERE v.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("orphaned requirements: %w", err)
	}
	defer rows.Close()

	var out []id.RequirementID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, id.RequirementID(u))
	}
	return out, rows.Err()
}

const versionSelect = `
	SELECT id, framework_id, label, status, effective_date, sunset_date, sequence, published_at
	FROM framework_versions`

const requirementSelect = `
	SELECT id, framework_id, version_id, section_code, requirement_text, category,
	       risk_level, keywords, implementation_guidance, evidence_examples,
	       supersedes, related_requirements, created_at
	FROM requirements`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFramework(row rowScanner) (*models.Framework, error) {
	var f models.Framework
	var u uuid.UUID
	err := row.Scan(&u, &f.Name, &f.Description, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan framework: %w", err)
	}
	f.ID = id.FrameworkID(u)
	return &f, nil
}

func scanVersion(row rowScanner) (*models.FrameworkVersion, error) {
	var v models.FrameworkVersion
	var vid, fid uuid.UUID
	err := row.Scan(&vid, &fid, &v.Label, &v.Status, &v.EffectiveDate, &v.SunsetDate, &v.Sequence, &v.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	v.ID = id.VersionID(vid)
	v.FrameworkID = id.FrameworkID(fid)
	return &v, nil
}

func scanRequirement(row rowScanner) (*models.Requirement, error) {
	var r models.Requirement
	var rid, fid, vid uuid.UUID
	var supersedes *uuid.UUID
	var related []uuid.UUID
	err := row.Scan(&rid, &fid, &vid, &r.SectionCode, &r.Text, &r.Category,
		&r.RiskLevel, &r.Keywords, &r.ImplementationGuidance, &r.EvidenceExamples,
		&supersedes, &related, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan requirement: %w", err)
	}
	r.ID = id.RequirementID(rid)
	r.FrameworkID = id.FrameworkID(fid)
	r.VersionID = id.VersionID(vid)
	if supersedes != nil {
		sup := id.RequirementID(*supersedes)
		r.Supersedes = &sup
	}
	for _, u := range related {
		r.RelatedRequirements = append(r.RelatedRequirements, id.RequirementID(u))
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
