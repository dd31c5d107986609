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

	"crosswalk/internal/drift/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// PostgresStore persists drifts with pgx. The comparison, actions, and
// decision log ride along as JSONB; a unique index on
// (requirement_id, old_version_id, new_version_id) backs the
// one-drift-per-comparison invariant.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, drift *models.ComplianceDrift) error {
	payload, err := marshalDriftPayload(drift)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO drifts
			(id, framework_id, old_version_id, new_version_id, requirement_id,
			 change_type, impact_level, status, payload, resolution_note,
			 acknowledged_by, acknowledged_at, record_version, detected_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(drift.ID), uuid.UUID(drift.FrameworkID),
		uuid.UUID(drift.OldVersionID), uuid.UUID(drift.NewVersionID),
		uuid.UUID(drift.RequirementID), drift.ChangeType, drift.ImpactLevel,
		drift.Status, payload, drift.ResolutionNote,
		drift.AcknowledgedBy, drift.AcknowledgedAt,
		drift.RecordVersion, drift.DetectedAt, drift.LastUpdated,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel.ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("insert drift: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, driftID id.DriftID) (*models.ComplianceDrift, error) {
	row := s.pool.QueryRow(ctx, driftSelect+` WHERE id = $1`, uuid.UUID(driftID))
	return scanDrift(row)
}

func (s *PostgresStore) FindByTuple(ctx context.Context, requirementID id.RequirementID, oldVersionID, newVersionID id.VersionID) (*models.ComplianceDrift, error) {
	row := s.pool.QueryRow(ctx, driftSelect+`
		WHERE requirement_id = $1 AND old_version_id = $2 AND new_version_id = $3`,
		uuid.UUID(requirementID), uuid.UUID(oldVersionID), uuid.UUID(newVersionID))
	return scanDrift(row)
}

func (s *PostgresStore) ListByVersionPair(ctx context.Context, oldVersionID, newVersionID id.VersionID) ([]*models.ComplianceDrift, error) {
	rows, err := s.pool.Query(ctx, driftSelect+`
		WHERE old_version_id = $1 AND new_version_id = $2 ORDER BY detected_at`,
		uuid.UUID(oldVersionID), uuid.UUID(newVersionID))
	if err != nil {
		return nil, fmt.Errorf("list drifts by version pair: %w", err)
	}
	defer rows.Close()
	return scanDrifts(rows)
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.ComplianceDrift, error) {
	rows, err := s.pool.Query(ctx, driftSelect+`
		WHERE status NOT IN ($1, $2) ORDER BY detected_at`,
		models.StatusResolved, models.StatusRiskAccepted)
	if err != nil {
		return nil, fmt.Errorf("list open drifts: %w", err)
	}
	defer rows.Close()
	return scanDrifts(rows)
}

func (s *PostgresStore) Execute(ctx context.Context, driftID id.DriftID, validate func(*models.ComplianceDrift) error, mutate func(*models.ComplianceDrift)) (*models.ComplianceDrift, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin execute tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, driftSelect+` WHERE id = $1 FOR UPDATE`, uuid.UUID(driftID))
	drift, err := scanDrift(row)
	if err != nil {
		return nil, err
	}

	if err := validate(drift); err != nil {
		return nil, err
	}
	mutate(drift)
	drift.RecordVersion++

	payload, err := marshalDriftPayload(drift)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE drifts SET
			status = $2, payload = $3, resolution_note = $4,
			acknowledged_by = $5, acknowledged_at = $6,
			record_version = $7, last_updated = $8
		WHERE id = $1`,
		uuid.UUID(drift.ID), drift.Status, payload, drift.ResolutionNote,
		drift.AcknowledgedBy, drift.AcknowledgedAt,
		drift.RecordVersion, drift.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("persist executed mutation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit execute tx: %w", err)
	}
	return drift, nil
}

// driftPayload bundles the JSONB side of a drift row.
type driftPayload struct {
	AffectedControlIDs []id.ControlID               `json:"affected_control_ids"`
	Comparison         models.RequirementComparison `json:"comparison"`
	Actions            []models.RequiredAction      `json:"actions,omitempty"`
	DecisionLog        []string                     `json:"decision_log,omitempty"`
}

func marshalDriftPayload(drift *models.ComplianceDrift) ([]byte, error) {
	raw, err := json.Marshal(driftPayload{
		AffectedControlIDs: drift.AffectedControlIDs,
		Comparison:         drift.Comparison,
		Actions:            drift.Actions,
		DecisionLog:        drift.DecisionLog,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal drift payload: %w", err)
	}
	return raw, nil
}

const driftSelect = `
	SELECT id, framework_id, old_version_id, new_version_id, requirement_id,
	       change_type, impact_level, status, payload, resolution_note,
	       acknowledged_by, acknowledged_at, record_version, detected_at, last_updated
	FROM drifts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrift(row rowScanner) (*models.ComplianceDrift, error) {
	var d models.ComplianceDrift
	var did, fid, ovid, nvid, rid uuid.UUID
	var payload []byte
	err := row.Scan(&did, &fid, &ovid, &nvid, &rid,
		&d.ChangeType, &d.ImpactLevel, &d.Status, &payload, &d.ResolutionNote,
		&d.AcknowledgedBy, &d.AcknowledgedAt, &d.RecordVersion, &d.DetectedAt, &d.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan drift: %w", err)
	}
	d.ID = id.DriftID(did)
	d.FrameworkID = id.FrameworkID(fid)
	d.OldVersionID = id.VersionID(ovid)
	d.NewVersionID = id.VersionID(nvid)
	d.RequirementID = id.RequirementID(rid)

	var p driftPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode drift payload: %w", err)
		}
	}
	d.AffectedControlIDs = p.AffectedControlIDs
	d.Comparison = p.Comparison
	d.Actions = p.Actions
	d.DecisionLog = p.DecisionLog
	return &d, nil
}

func scanDrifts(rows pgx.Rows) ([]*models.ComplianceDrift, error) {
	var out []*models.ComplianceDrift
	for rows.Next() {
		d, err := scanDrift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
