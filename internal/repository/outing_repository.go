package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

// outingColumns is the canonical select list for outing_requests.
const outingColumns = `id, student_id, student_name, departure_date, departure_time, arrival_date, arrival_time,
       full_reason, summarized_reason, guardians, selected_guardian,
       guardian_approval_status, faculty_approval_status, status,
       guardian_approval_token, guardian_approval_link, guardian_approval_expires_at,
       qr_data, exit_scan_at, entry_scan_at, created_at, guardian_approved_at, approved_at`

// OutingRepository persists outing requests. Every state transition is a
// single conditional UPDATE carrying its guard in the WHERE clause, so a
// guard miss and a lost race are both observed as zero affected rows
// (returned as sql.ErrNoRows for the service layer to classify against a
// fresh read).
type OutingRepository struct {
	db *sqlx.DB
}

// NewOutingRepository constructs the repository.
func NewOutingRepository(db *sqlx.DB) *OutingRepository {
	return &OutingRepository{db: db}
}

// Create inserts a new request in state requested. The insert is guarded by
// a NOT EXISTS subquery so that at most one non-terminal request can exist
// per student; a blocked insert returns sql.ErrNoRows.
func (r *OutingRepository) Create(ctx context.Context, outing *models.OutingRequest) error {
	if outing.ID == "" {
		outing.ID = uuid.NewString()
	}
	if outing.CreatedAt.IsZero() {
		outing.CreatedAt = time.Now().UTC()
	}
	outing.Status = models.OutingStatusRequested
	outing.GuardianApprovalStatus = models.ApprovalPending
	outing.FacultyApprovalStatus = models.ApprovalPending

	const query = `INSERT INTO outing_requests
	(id, student_id, student_name, departure_date, departure_time, arrival_date, arrival_time,
	 full_reason, summarized_reason, guardians, selected_guardian,
	 guardian_approval_status, faculty_approval_status, status,
	 guardian_approval_token, guardian_approval_link, guardian_approval_expires_at, created_at)
	SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
	WHERE NOT EXISTS (
		SELECT 1 FROM outing_requests
		WHERE student_id = $2 AND status NOT IN ('rejected', 're_entered')
	)`

	result, err := r.db.ExecContext(ctx, query,
		outing.ID, outing.StudentID, outing.StudentName,
		outing.DepartureDate, outing.DepartureTime, outing.ArrivalDate, outing.ArrivalTime,
		outing.FullReason, outing.SummarizedReason, outing.Guardians, outing.SelectedGuardian,
		outing.GuardianApprovalStatus, outing.FacultyApprovalStatus, outing.Status,
		outing.GuardianApprovalToken, outing.GuardianApprovalLink, outing.GuardianApprovalExpiresAt,
		outing.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create outing request: %w", err)
	}
	return requireRow(result)
}

// GetByID fetches a request by identifier.
func (r *OutingRepository) GetByID(ctx context.Context, id string) (*models.OutingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM outing_requests WHERE id = $1`, outingColumns)
	var outing models.OutingRequest
	if err := r.db.GetContext(ctx, &outing, query, id); err != nil {
		return nil, err
	}
	return &outing, nil
}

// FindByToken resolves a guardian approval token to its request.
func (r *OutingRepository) FindByToken(ctx context.Context, token string) (*models.OutingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM outing_requests WHERE guardian_approval_token = $1`, outingColumns)
	var outing models.OutingRequest
	if err := r.db.GetContext(ctx, &outing, query, token); err != nil {
		return nil, err
	}
	return &outing, nil
}

// FindByCredential resolves a live QR credential to its request.
func (r *OutingRepository) FindByCredential(ctx context.Context, qrData string) (*models.OutingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM outing_requests WHERE qr_data = $1`, outingColumns)
	var outing models.OutingRequest
	if err := r.db.GetContext(ctx, &outing, query, qrData); err != nil {
		return nil, err
	}
	return &outing, nil
}

// FindActiveForStudent returns the single non-terminal request for a
// student, or sql.ErrNoRows when none exists.
func (r *OutingRepository) FindActiveForStudent(ctx context.Context, studentID string) (*models.OutingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM outing_requests
	WHERE student_id = $1 AND status NOT IN ('rejected', 're_entered')
	ORDER BY created_at DESC LIMIT 1`, outingColumns)
	var outing models.OutingRequest
	if err := r.db.GetContext(ctx, &outing, query, studentID); err != nil {
		return nil, err
	}
	return &outing, nil
}

// List returns requests matching the filter, latest first. Ordering is a
// presentation concern applied here, not a store invariant.
func (r *OutingRepository) List(ctx context.Context, filter models.OutingFilter) ([]models.OutingRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM outing_requests", outingColumns))

	conditions := make([]string, 0, 2)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var outings []models.OutingRequest
	if err := r.db.SelectContext(ctx, &outings, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list outing requests: %w", err)
	}
	return outings, nil
}

// GuardianDecisionParams groups the columns written by a guardian decision.
type GuardianDecisionParams struct {
	RequestID string
	Token     string
	Approve   bool
	DecidedAt time.Time
}

// ApplyGuardianDecision commits a guardian decision. Status, decision
// timestamp and token invalidation are one UPDATE: the token is nulled in
// the same write that records the decision, closing the replay window. The
// guard requires the exact pending token and an unexpired link.
func (r *OutingRepository) ApplyGuardianDecision(ctx context.Context, params GuardianDecisionParams) error {
	approvalStatus := models.ApprovalRejected
	status := models.OutingStatusRejected
	guardianApprovedAt := sql.NullTime{}
	if params.Approve {
		approvalStatus = models.ApprovalApproved
		status = models.OutingStatusGuardianApproved
		guardianApprovedAt = sql.NullTime{Time: params.DecidedAt, Valid: true}
	}

	const query = `UPDATE outing_requests SET
		guardian_approval_status = $1,
		status = $2,
		guardian_approved_at = $3,
		guardian_approval_token = NULL,
		guardian_approval_link = NULL
	WHERE id = $4
	  AND guardian_approval_token = $5
	  AND guardian_approval_status = 'pending'
	  AND guardian_approval_expires_at > $6`

	result, err := r.db.ExecContext(ctx, query,
		approvalStatus, status, guardianApprovedAt,
		params.RequestID, params.Token, params.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("apply guardian decision: %w", err)
	}
	return requireRow(result)
}

// FacultyDecisionParams groups the columns written by a faculty decision.
type FacultyDecisionParams struct {
	RequestID string
	Approve   bool
	QRData    string
	DecidedAt time.Time
}

// ApplyFacultyDecision commits the institutional decision. Approval mints
// the credential in the same write; the guard requires guardian consent to
// already be recorded and no prior faculty decision.
func (r *OutingRepository) ApplyFacultyDecision(ctx context.Context, params FacultyDecisionParams) error {
	approvalStatus := models.ApprovalRejected
	status := models.OutingStatusRejected
	qrData := sql.NullString{}
	if params.Approve {
		approvalStatus = models.ApprovalApproved
		status = models.OutingStatusQRGenerated
		qrData = sql.NullString{String: params.QRData, Valid: true}
	}

	const query = `UPDATE outing_requests SET
		faculty_approval_status = $1,
		status = $2,
		approved_at = $3,
		qr_data = $4
	WHERE id = $5
	  AND status = 'guardian_approved'
	  AND faculty_approval_status = 'pending'`

	result, err := r.db.ExecContext(ctx, query,
		approvalStatus, status, params.DecidedAt, qrData, params.RequestID,
	)
	if err != nil {
		return fmt.Errorf("apply faculty decision: %w", err)
	}
	return requireRow(result)
}

// RecordExitScan marks the student as having left campus.
func (r *OutingRepository) RecordExitScan(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outing_requests SET
		exit_scan_at = $1,
		status = 'exited'
	WHERE id = $2
	  AND status IN ('faculty_approved', 'qr_generated')
	  AND exit_scan_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("record exit scan: %w", err)
	}
	return requireRow(result)
}

// RecordEntryScan closes the outing. The credential is invalidated in the
// same write that records the entry.
func (r *OutingRepository) RecordEntryScan(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outing_requests SET
		entry_scan_at = $1,
		status = 're_entered',
		qr_data = NULL
	WHERE id = $2
	  AND status = 'exited'
	  AND exit_scan_at IS NOT NULL
	  AND entry_scan_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("record entry scan: %w", err)
	}
	return requireRow(result)
}

// DeletePending removes a request that is still awaiting the guardian.
// Ownership and the pending guard travel in the WHERE clause.
func (r *OutingRepository) DeletePending(ctx context.Context, id, studentID string) error {
	const query = `DELETE FROM outing_requests
	WHERE id = $1
	  AND student_id = $2
	  AND guardian_approval_status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, studentID)
	if err != nil {
		return fmt.Errorf("delete pending outing request: %w", err)
	}
	return requireRow(result)
}

// ExpireStaleTokens nulls out token material on pending requests whose
// links lapsed. Hygiene only: resolution-time expiry checks remain
// authoritative.
func (r *OutingRepository) ExpireStaleTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE outing_requests SET
		guardian_approval_token = NULL,
		guardian_approval_link = NULL
	WHERE guardian_approval_status = 'pending'
	  AND guardian_approval_token IS NOT NULL
	  AND guardian_approval_expires_at <= $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check expired token rows: %w", err)
	}
	return rows, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
