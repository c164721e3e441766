// Package export writes mileage logs of completed trips for reimbursement:
// CSV for payroll imports, XLSX for finance, and PDF for staff sign-off.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/queue"
)

var tracer = otel.Tracer("github.com/stuartshay/otel-mileage/internal/export")

// Format is an output file type
type Format string

// Supported formats
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a requested format, defaulting to CSV
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", domain.ValidationError{Field: "format", Msg: fmt.Sprintf("must be csv, xlsx or pdf, got %q", s)}
	}
}

// TripSource lists completed trips with their staff details
type TripSource interface {
	ListCompletedTrips(ctx context.Context, from, to time.Time, staffID string) ([]domain.CompletedTrip, error)
}

// Request selects the trips to export. Dates are calendar days, inclusive.
type Request struct {
	StartDate time.Time
	EndDate   time.Time
	StaffID   string
	Format    Format
}

// Entry is one line of a mileage log
type Entry struct {
	Date         string
	StaffID      string
	StaffName    string
	TripID       string
	StartTime    string
	EndTime      string
	StartAddress string
	EndAddress   string
	Miles        float64
	DriveMinutes int
	CostPerMile  float64
	Cost         float64
}

// Summary totals a mileage log
type Summary struct {
	TripCount      int
	TotalMiles     float64
	TotalCost      float64
	TotalDriveTime int
}

// Log is a fully priced mileage log ready to be written
type Log struct {
	Title   string
	From    string
	To      string
	Entries []Entry
	Summary Summary
}

// Exporter builds mileage logs and writes them to the report directory
type Exporter struct {
	trips       TripSource
	outputDir   string
	defaultRate float64
	loc         *time.Location
}

// NewExporter creates an exporter writing into outputDir
func NewExporter(trips TripSource, outputDir string, defaultRate float64, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		trips:       trips,
		outputDir:   outputDir,
		defaultRate: defaultRate,
		loc:         loc,
	}
}

// Export writes the requested log and returns its path and totals
func (e *Exporter) Export(ctx context.Context, req Request) (string, Summary, error) {
	ctx, span := tracer.Start(ctx, "export.Export", trace.WithAttributes(
		attribute.String("format", string(req.Format)),
		attribute.String("staff.id", req.StaffID),
	))
	defer span.End()

	if req.EndDate.Before(req.StartDate) {
		return "", Summary{}, domain.ValidationError{Field: "endDate", Msg: "must not be before startDate"}
	}

	mileageLog, err := e.BuildLog(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", Summary{}, err
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", Summary{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(e.outputDir, fileName(req))

	switch req.Format {
	case FormatCSV:
		err = writeCSV(path, mileageLog)
	case FormatXLSX:
		err = writeXLSX(path, mileageLog)
	case FormatPDF:
		err = writePDF(path, mileageLog)
	default:
		err = domain.ValidationError{Field: "format", Msg: fmt.Sprintf("unsupported format %q", req.Format)}
	}
	if err != nil {
		span.RecordError(err)
		return "", Summary{}, err
	}

	log.Info().
		Str("path", path).
		Int("trips", mileageLog.Summary.TripCount).
		Float64("total_miles", mileageLog.Summary.TotalMiles).
		Msg("Mileage log written")

	return path, mileageLog.Summary, nil
}

// BuildLog loads and prices the trips that ended inside the request window
func (e *Exporter) BuildLog(ctx context.Context, req Request) (Log, error) {
	from := e.startOfDay(req.StartDate)
	to := e.startOfDay(req.EndDate).AddDate(0, 0, 1)

	trips, err := e.trips.ListCompletedTrips(ctx, from, to, req.StaffID)
	if err != nil {
		return Log{}, fmt.Errorf("failed to load trips: %w", err)
	}

	l := Log{
		Title:   "Mileage Reimbursement Log",
		From:    from.Format(domain.DateLayout),
		To:      req.EndDate.Format(domain.DateLayout),
		Entries: make([]Entry, 0, len(trips)),
	}

	for _, t := range trips {
		entry := Entry{
			StaffID:      t.StaffID,
			StaffName:    t.StaffName,
			TripID:       t.ID,
			StartTime:    t.StartTime.In(e.loc).Format("15:04"),
			StartAddress: t.StartLocation.Address,
			Miles:        t.TotalDistance,
			DriveMinutes: t.TotalDriveTime,
			CostPerMile:  t.Rate(e.defaultRate),
			Cost:         t.Cost(e.defaultRate),
		}
		entry.Date = t.StartTime.In(e.loc).Format(domain.DateLayout)
		if t.EndTime != nil {
			entry.Date = t.EndTime.In(e.loc).Format(domain.DateLayout)
			entry.EndTime = t.EndTime.In(e.loc).Format("15:04")
		}
		if t.EndLocation != nil {
			entry.EndAddress = t.EndLocation.Address
		}

		l.Entries = append(l.Entries, entry)
		l.Summary.TripCount++
		l.Summary.TotalMiles += entry.Miles
		l.Summary.TotalCost += entry.Cost
		l.Summary.TotalDriveTime += entry.DriveMinutes
	}

	l.Summary.TotalMiles = calculator.Round2(l.Summary.TotalMiles)
	l.Summary.TotalCost = calculator.Round2(l.Summary.TotalCost)
	return l, nil
}

// Process runs an export job from the queue
func (e *Exporter) Process(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	log.Info().
		Str("job_id", job.ID).
		Str("start_date", job.StartDate).
		Str("end_date", job.EndDate).
		Str("staff_id", job.StaffID).
		Msg("Processing export job")

	req, err := e.ParseRequest(job.JobParams)
	if err != nil {
		return nil, err
	}

	path, summary, err := e.Export(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to write mileage log")
		return nil, fmt.Errorf("export failed: %w", err)
	}

	return &queue.JobResult{
		FilePath:       path,
		TripCount:      summary.TripCount,
		TotalMiles:     summary.TotalMiles,
		TotalCost:      summary.TotalCost,
		TotalDriveTime: summary.TotalDriveTime,
	}, nil
}

// ParseRequest validates job parameters and turns them into a Request
func (e *Exporter) ParseRequest(p queue.JobParams) (Request, error) {
	if p.StartDate == "" {
		return Request{}, domain.ValidationError{Field: "startDate", Msg: "is required"}
	}
	start, err := time.ParseInLocation(domain.DateLayout, p.StartDate, e.loc)
	if err != nil {
		return Request{}, domain.ValidationError{Field: "startDate", Msg: "must be YYYY-MM-DD"}
	}

	end := start
	if p.EndDate != "" {
		end, err = time.ParseInLocation(domain.DateLayout, p.EndDate, e.loc)
		if err != nil {
			return Request{}, domain.ValidationError{Field: "endDate", Msg: "must be YYYY-MM-DD"}
		}
	}
	if end.Before(start) {
		return Request{}, domain.ValidationError{Field: "endDate", Msg: "must not be before startDate"}
	}

	format, err := ParseFormat(p.Format)
	if err != nil {
		return Request{}, err
	}

	return Request{StartDate: start, EndDate: end, StaffID: p.StaffID, Format: format}, nil
}

func (e *Exporter) startOfDay(t time.Time) time.Time {
	local := t.In(e.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
}

func fileName(req Request) string {
	name := fmt.Sprintf("mileage_%s_%s", req.StartDate.Format("20060102"), req.EndDate.Format("20060102"))
	if req.StaffID != "" {
		name += "_" + sanitize(req.StaffID)
	}
	return name + "." + string(req.Format)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
