package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// Render lays the report out on a single A4 page.
func Render(c *Context) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Diagnostic Report %s", c.ReportID), true)
	pdf.SetAuthor(c.Hospital, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	// header band
	pdf.SetFillColor(0, 119, 182)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(width, 12, tr(c.Hospital+" - Diagnostic Report"), "", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(width, 6, tr(fmt.Sprintf("Report ID %s   |   %s %s   |   %s", c.ReportID, c.ReportDate, c.ReportTime, c.Department)), "", 1, "C", true, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	section := func(title string) {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetFillColor(226, 232, 240)
		pdf.CellFormat(width, 7, tr(title), "", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	row := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(width-50, 6, tr(value), "", "L", false)
	}

	section("Patient")
	row("Name", c.PatientName)
	row("Patient ID", c.PatientID)
	row("Email", c.PatientEmail)

	section("Scan")
	row("Scan ID", fmt.Sprintf("%d", c.ScanID))
	row("Type / Body part", c.ScanType+" / "+c.BodyPart)
	row("Acquired", c.ScanDate+" "+c.ScanTime)
	row("Priority", c.Priority)
	row("Status", c.ScanStatus)

	section("AI Analysis")
	row("Model", c.AIModel+" "+c.AIVersion)
	row("Prediction", c.Prediction)
	if c.Confidence == "N/A" {
		row("Confidence", c.Confidence)
	} else {
		row("Confidence", c.Confidence+" %")
	}
	row("Risk level", c.RiskLevel)

	section("Clinical Findings")
	pdf.MultiCell(width, 6, tr(c.DoctorNotes), "", "L", false)
	pdf.Ln(1)
	row("Impression", c.Impression)

	section("Recommendations")
	for _, r := range c.Recommendations {
		pdf.MultiCell(width, 6, tr("- "+r), "", "L", false)
	}

	if c.Prescription != "" {
		section("Prescription")
		pdf.MultiCell(width, 6, tr(c.Prescription), "", "L", false)
	}

	if len(c.ScanImage) > 0 {
		section("Scan Image")
		name := fmt.Sprintf("scan-%d", c.ScanID)
		opts := fpdf.ImageOptions{ImageType: c.ScanImageType, ReadDpi: true}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(c.ScanImage))
		pdf.ImageOptions(name, left, 0, 40, 0, true, opts, 0, "")
	}

	section("Signatories")
	row(c.DoctorName, c.DoctorQualification)
	row(c.PharmacistName, "Dispensing review")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(width, 4, tr("AI results are preliminary and have been reviewed by a physician. "+
		"Consult your doctor for medical advice."), "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}
