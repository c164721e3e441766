package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/queue"
)

type fakeTrips struct {
	trips   []domain.CompletedTrip
	err     error
	gotFrom time.Time
	gotTo   time.Time
	gotID   string
}

func (f *fakeTrips) ListCompletedTrips(_ context.Context, from, to time.Time, staffID string) ([]domain.CompletedTrip, error) {
	f.gotFrom, f.gotTo, f.gotID = from, to, staffID
	return f.trips, f.err
}

func completedTrip(id, staff string, miles float64, minutes int, rate float64, end time.Time) domain.CompletedTrip {
	start := end.Add(-time.Duration(minutes) * time.Minute)
	return domain.CompletedTrip{
		Trip: domain.Trip{
			ID:             id,
			StaffID:        staff,
			Status:         domain.TripCompleted,
			StartTime:      start,
			EndTime:        &end,
			StartLocation:  domain.Location{Latitude: 40, Longitude: -75, Address: "12 Elm St"},
			EndLocation:    &domain.Location{Latitude: 40.01, Longitude: -75, Address: "99 Oak Ave"},
			TotalDistance:  miles,
			TotalDriveTime: minutes,
		},
		StaffName:   "Staff " + staff,
		CostPerMile: rate,
	}
}

func sampleTrips() []domain.CompletedTrip {
	day := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	return []domain.CompletedTrip{
		completedTrip("t1", "a", 0.69, 25, 0.67, day),
		completedTrip("t2", "b", 8, 30, 0, day.Add(2*time.Hour)),
	}
}

func january15() Request {
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return Request{StartDate: d, EndDate: d}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, " pdf ": FormatPDF} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("docx")
	assert.True(t, domain.IsValidation(err))
}

func TestBuildLog(t *testing.T) {
	src := &fakeTrips{trips: sampleTrips()}
	e := NewExporter(src, t.TempDir(), 0.5, time.UTC)

	l, err := e.BuildLog(context.Background(), january15())
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", src.gotFrom.Format(domain.DateLayout))
	assert.Equal(t, "2024-01-16", src.gotTo.Format(domain.DateLayout))

	require.Len(t, l.Entries, 2)
	assert.Equal(t, 0.46, l.Entries[0].Cost)
	assert.Equal(t, "13:35", l.Entries[0].StartTime)
	assert.Equal(t, "14:00", l.Entries[0].EndTime)
	assert.Equal(t, 0.5, l.Entries[1].CostPerMile)
	assert.Equal(t, 4.0, l.Entries[1].Cost)

	assert.Equal(t, Summary{TripCount: 2, TotalMiles: 8.69, TotalCost: 4.46, TotalDriveTime: 55}, l.Summary)
}

func TestExport_CSV(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(&fakeTrips{trips: sampleTrips()}, dir, 0.67, time.UTC)

	req := january15()
	req.Format = FormatCSV
	path, summary, err := e.Export(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "mileage_20240115_20240115.csv"), path)
	assert.Equal(t, 2, summary.TripCount)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, logHeader, records[0])
	assert.Equal(t, "t1", records[1][3])
	assert.Equal(t, "0.69", records[1][8])
	assert.Equal(t, "0.46", records[1][11])
	assert.Equal(t, "TOTAL", records[3][0])
	assert.Equal(t, "8.69", records[3][8])
	assert.Equal(t, "5.82", records[3][11])
}

func TestExport_XLSX(t *testing.T) {
	e := NewExporter(&fakeTrips{trips: sampleTrips()}, t.TempDir(), 0.67, time.UTC)

	req := january15()
	req.Format = FormatXLSX
	req.StaffID = "a/b"
	path, _, err := e.Export(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "mileage_20240115_20240115_a_b.xlsx"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(sheetName, "A3")
	require.NoError(t, err)
	assert.Equal(t, "Date", header)

	trip, err := f.GetCellValue(sheetName, "D4")
	require.NoError(t, err)
	assert.Equal(t, "t1", trip)

	formula, err := f.GetCellFormula(sheetName, "I6")
	require.NoError(t, err)
	assert.Equal(t, "SUM(I4:I5)", formula)
}

func TestExport_PDF(t *testing.T) {
	e := NewExporter(&fakeTrips{trips: sampleTrips()}, t.TempDir(), 0.67, time.UTC)

	req := january15()
	req.Format = FormatPDF
	path, _, err := e.Export(context.Background(), req)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
}

func TestExport_EmptyLogStillWritten(t *testing.T) {
	e := NewExporter(&fakeTrips{}, t.TempDir(), 0.67, time.UTC)

	for _, format := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		req := january15()
		req.Format = format
		path, summary, err := e.Export(context.Background(), req)
		require.NoError(t, err, format)
		assert.FileExists(t, path)
		assert.Equal(t, 0, summary.TripCount)
	}
}

func TestExport_SourceError(t *testing.T) {
	e := NewExporter(&fakeTrips{err: errors.New("db down")}, t.TempDir(), 0.67, time.UTC)

	req := january15()
	req.Format = FormatCSV
	_, _, err := e.Export(context.Background(), req)
	assert.Error(t, err)
}

func TestParseRequest(t *testing.T) {
	e := NewExporter(&fakeTrips{}, t.TempDir(), 0.67, time.UTC)

	req, err := e.ParseRequest(queue.JobParams{StartDate: "2024-01-01", EndDate: "2024-01-31", Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, req.Format)
	assert.Equal(t, 31, req.EndDate.Day())

	req, err = e.ParseRequest(queue.JobParams{StartDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, req.StartDate, req.EndDate)
	assert.Equal(t, FormatCSV, req.Format)

	bad := []queue.JobParams{
		{},
		{StartDate: "01/01/2024"},
		{StartDate: "2024-01-02", EndDate: "2024-01-01"},
		{StartDate: "2024-01-01", Format: "txt"},
	}
	for _, p := range bad {
		_, err := e.ParseRequest(p)
		assert.True(t, domain.IsValidation(err), "%+v", p)
	}
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(&fakeTrips{trips: sampleTrips()}, dir, 0.67, time.UTC)

	result, err := e.Process(context.Background(), &queue.Job{
		ID:        "job-1",
		JobParams: queue.JobParams{StartDate: "2024-01-15", EndDate: "2024-01-15", Format: "csv"},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "mileage_20240115_20240115.csv"), result.FilePath)
	assert.Equal(t, 2, result.TripCount)
	assert.Equal(t, 8.69, result.TotalMiles)
	assert.Equal(t, 5.82, result.TotalCost)
	assert.Equal(t, 55, result.TotalDriveTime)
}
