package export

import (
	"fmt"

	"github.com/phpdave11/gofpdf"
)

type pdfColumn struct {
	title string
	width float64
	align string
	value func(Entry) string
}

var pdfColumns = []pdfColumn{
	{"Date", 24, "L", func(e Entry) string { return e.Date }},
	{"Staff", 40, "L", func(e Entry) string { return e.StaffName }},
	{"Start", 16, "C", func(e Entry) string { return e.StartTime }},
	{"End", 16, "C", func(e Entry) string { return e.EndTime }},
	{"From", 62, "L", func(e Entry) string { return e.StartAddress }},
	{"To", 62, "L", func(e Entry) string { return e.EndAddress }},
	{"Miles", 18, "R", func(e Entry) string { return fmt.Sprintf("%.2f", e.Miles) }},
	{"Rate", 16, "R", func(e Entry) string { return fmt.Sprintf("%.2f", e.CostPerMile) }},
	{"Cost", 20, "R", func(e Entry) string { return fmt.Sprintf("$%.2f", e.Cost) }},
}

// writePDF renders the log as a landscape table with a signature line
func writePDF(path string, l Log) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(l.Title, false)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, l.Title)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", l.From, l.To))
	pdf.Ln(10)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(220, 230, 241)
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 7, c.title, "1", 0, c.align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	header()
	pdf.SetHeaderFunc(header)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, e := range l.Entries {
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 6, tr(truncate(c.value(e), c.width)), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Trips: %d    Miles: %.2f    Drive time: %d min    Total: $%.2f",
		l.Summary.TripCount, l.Summary.TotalMiles, l.Summary.TotalDriveTime, l.Summary.TotalCost))
	pdf.Ln(16)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 7, "Employee signature: ______________________________    Approved by: ______________________________")

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// truncate keeps a value inside its column, roughly 2mm per character at 9pt
func truncate(s string, width float64) string {
	n := int(width / 2)
	if len(s) <= n || n < 4 {
		return s
	}
	return s[:n-3] + "..."
}
