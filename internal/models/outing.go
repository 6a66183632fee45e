package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OutingStatus captures the overall lifecycle state of an outing request.
type OutingStatus string

const (
	OutingStatusRequested        OutingStatus = "requested"
	OutingStatusGuardianApproved OutingStatus = "guardian_approved"
	// OutingStatusFacultyApproved and OutingStatusQRGenerated label the same
	// authorized state: faculty approval and credential minting are one
	// atomic write, so the store always records qr_generated. The alias is
	// accepted on reads for rows written by older revisions.
	OutingStatusFacultyApproved OutingStatus = "faculty_approved"
	OutingStatusQRGenerated     OutingStatus = "qr_generated"
	OutingStatusExited          OutingStatus = "exited"
	OutingStatusReEntered       OutingStatus = "re_entered"
	OutingStatusRejected        OutingStatus = "rejected"
)

// Terminal reports whether no further transition can leave this status.
func (s OutingStatus) Terminal() bool {
	return s == OutingStatusRejected || s == OutingStatusReEntered
}

// ActiveOutingStatuses are the non-terminal statuses; a student may hold at
// most one request in any of them.
func ActiveOutingStatuses() []OutingStatus {
	return []OutingStatus{
		OutingStatusRequested,
		OutingStatusGuardianApproved,
		OutingStatusFacultyApproved,
		OutingStatusQRGenerated,
		OutingStatusExited,
	}
}

// ApprovalStatus tracks a single approver's decision.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Guardian is one entry of the student's guardian snapshot. The snapshot is
// copied into the request at creation time; later edits to the student's
// guardian list never alter an in-flight request.
type Guardian struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Value implements driver.Valuer storing the guardian as JSONB.
func (g Guardian) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// Scan implements sql.Scanner.
func (g *Guardian) Scan(src interface{}) error {
	return scanJSON(src, g)
}

// GuardianList is the JSONB-backed guardian snapshot.
type GuardianList []Guardian

// Value implements driver.Valuer.
func (l GuardianList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Guardian{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *GuardianList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Contains reports whether the snapshot holds a guardian with the given id.
func (l GuardianList) Contains(id string) bool {
	for _, g := range l {
		if g.ID == id {
			return true
		}
	}
	return false
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// OutingRequest is the aggregate root of the outing-pass workflow, one row
// per outing attempt.
type OutingRequest struct {
	ID          string `db:"id" json:"id"`
	StudentID   string `db:"student_id" json:"studentId"`
	StudentName string `db:"student_name" json:"studentName"`

	// Campus-local wall-clock strings, no timezone normalization.
	DepartureDate string `db:"departure_date" json:"departureDate"`
	DepartureTime string `db:"departure_time" json:"departureTime"`
	ArrivalDate   string `db:"arrival_date" json:"arrivalDate"`
	ArrivalTime   string `db:"arrival_time" json:"arrivalTime"`

	FullReason       string `db:"full_reason" json:"fullReason"`
	SummarizedReason string `db:"summarized_reason" json:"summarizedReason"`

	Guardians        GuardianList `db:"guardians" json:"guardians"`
	SelectedGuardian Guardian     `db:"selected_guardian" json:"selectedGuardian"`

	GuardianApprovalStatus ApprovalStatus `db:"guardian_approval_status" json:"guardianApprovalStatus"`
	FacultyApprovalStatus  ApprovalStatus `db:"faculty_approval_status" json:"facultyApprovalStatus"`
	Status                 OutingStatus   `db:"status" json:"status"`

	// Token material: non-null only while the guardian decision is pending.
	GuardianApprovalToken     *string    `db:"guardian_approval_token" json:"-"`
	GuardianApprovalLink      *string    `db:"guardian_approval_link" json:"guardianApprovalLink,omitempty"`
	GuardianApprovalExpiresAt *time.Time `db:"guardian_approval_expires_at" json:"guardianApprovalExpiresAt,omitempty"`

	// QRData is the bearer credential, live between faculty approval and the
	// entry scan.
	QRData *string `db:"qr_data" json:"qrData,omitempty"`

	ExitScanAt  *time.Time `db:"exit_scan_at" json:"exitScanAt,omitempty"`
	EntryScanAt *time.Time `db:"entry_scan_at" json:"entryScanAt,omitempty"`

	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	GuardianApprovedAt *time.Time `db:"guardian_approved_at" json:"guardianApprovedAt,omitempty"`
	ApprovedAt         *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
}

// Authorized reports whether the request is in the credential-live state.
func (o *OutingRequest) Authorized() bool {
	return o.Status == OutingStatusFacultyApproved || o.Status == OutingStatusQRGenerated
}

// OutingFilter constrains listing queries.
type OutingFilter struct {
	StudentID string
	Statuses  []OutingStatus
	Limit     int
	Offset    int
}

// Outing change-feed event names.
const (
	OutingEventCreated          = "outing.created"
	OutingEventGuardianApproved = "outing.guardian_approved"
	OutingEventGuardianRejected = "outing.guardian_rejected"
	OutingEventFacultyApproved  = "outing.faculty_approved"
	OutingEventFacultyRejected  = "outing.faculty_rejected"
	OutingEventExited           = "outing.exited"
	OutingEventReEntered        = "outing.re_entered"
	OutingEventCancelled        = "outing.cancelled"
)

// OutingEvent is published on the change feed after every committed
// transition. Consumers use it for live views only, never to decide write
// eligibility.
type OutingEvent struct {
	Event     string        `json:"event"`
	RequestID string        `json:"requestId"`
	StudentID string        `json:"studentId"`
	Status    OutingStatus  `json:"status"`
	Request   *OutingRequest `json:"request,omitempty"`
	At        time.Time     `json:"at"`
}
