package dto

import "github.com/noah-isme/campus-outpass-api/internal/models"

// CreateOutingRequest is the student-facing creation payload. The guardian
// list is snapshotted into the request verbatim; the selected guardian must
// be one of its entries.
type CreateOutingRequest struct {
	DepartureDate      string                `json:"departureDate" binding:"required"`
	DepartureTime      string                `json:"departureTime" binding:"required"`
	ArrivalDate        string                `json:"arrivalDate" binding:"required"`
	ArrivalTime        string                `json:"arrivalTime" binding:"required"`
	FullReason         string                `json:"fullReason" binding:"required"`
	Guardians          []models.Guardian     `json:"guardians" binding:"required,min=1"`
	SelectedGuardianID string                `json:"selectedGuardianId" binding:"required"`
}

// GuardianDecisionRequest carries the guardian's choice for a token.
type GuardianDecisionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
}

// FacultyDecisionRequest carries the staff reviewer's choice.
type FacultyDecisionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
}

// Scan directions accepted by the gate endpoint.
const (
	ScanDirectionExit  = "exit"
	ScanDirectionEntry = "entry"
)

// ScanRequest is submitted by the gate scanner. The credential is the QR
// payload; direction distinguishes exit from entry.
type ScanRequest struct {
	QRData    string `json:"qrData" binding:"required"`
	Direction string `json:"direction" binding:"required,oneof=exit entry"`
}

// GuardianOutingView is the reduced request view rendered to the
// unauthenticated guardian page. It never echoes token material or the full
// guardian snapshot.
type GuardianOutingView struct {
	StudentName      string `json:"studentName"`
	DepartureDate    string `json:"departureDate"`
	DepartureTime    string `json:"departureTime"`
	ArrivalDate      string `json:"arrivalDate"`
	ArrivalTime      string `json:"arrivalTime"`
	SummarizedReason string `json:"summarizedReason"`
	GuardianName     string `json:"guardianName"`
	Status           string `json:"status"`
}

// OutingQuery filters staff/student listing endpoints.
type OutingQuery struct {
	Statuses  []models.OutingStatus
	StudentID string
	Limit     int
	Offset    int
}
