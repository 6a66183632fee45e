package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// GatePass carries the fields printed on an outing pass.
type GatePass struct {
	RequestID     string
	StudentName   string
	GuardianName  string
	DepartureDate string
	DepartureTime string
	ArrivalDate   string
	ArrivalTime   string
	Reason        string
	ApprovedAt    string
	Credential    string
}

// PassRenderer renders an authorized outing into a printable gate pass.
type PassRenderer struct{}

// NewPassRenderer constructs a pass renderer.
func NewPassRenderer() *PassRenderer {
	return &PassRenderer{}
}

// Render produces the PDF bytes for a gate pass.
func (r *PassRenderer) Render(pass GatePass) ([]byte, error) {
	if pass.Credential == "" {
		return nil, fmt.Errorf("pass requires a live credential")
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "CAMPUS OUTING PASS", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, pass.RequestID, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Student", pass.StudentName},
		{"Guardian", pass.GuardianName},
		{"Departure", fmt.Sprintf("%s %s", pass.DepartureDate, pass.DepartureTime)},
		{"Return", fmt.Sprintf("%s %s", pass.ArrivalDate, pass.ArrivalTime)},
		{"Reason", pass.Reason},
		{"Approved", pass.ApprovedAt},
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(32, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Courier", "B", 11)
	pdf.CellFormat(0, 10, pass.Credential, "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, "Present this pass at the gate for exit and entry scans.", "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render gate pass: %w", err)
	}
	return buf.Bytes(), nil
}
