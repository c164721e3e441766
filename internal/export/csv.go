package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

var logHeader = []string{
	"date", "staff_id", "staff_name", "trip_id", "start_time", "end_time",
	"start_address", "end_address", "miles", "drive_minutes", "cost_per_mile", "cost",
}

func (e Entry) record() []string {
	return []string{
		e.Date,
		e.StaffID,
		e.StaffName,
		e.TripID,
		e.StartTime,
		e.EndTime,
		e.StartAddress,
		e.EndAddress,
		fmt.Sprintf("%.2f", e.Miles),
		strconv.Itoa(e.DriveMinutes),
		fmt.Sprintf("%.2f", e.CostPerMile),
		fmt.Sprintf("%.2f", e.Cost),
	}
}

// writeCSV writes one row per trip followed by a totals row
func writeCSV(path string, l Log) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close CSV file")
		}
	}()

	writer := csv.NewWriter(file)

	if err := writer.Write(logHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range l.Entries {
		if err := writer.Write(entry.record()); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	total := make([]string, len(logHeader))
	total[0] = "TOTAL"
	total[3] = strconv.Itoa(l.Summary.TripCount)
	total[8] = fmt.Sprintf("%.2f", l.Summary.TotalMiles)
	total[9] = strconv.Itoa(l.Summary.TotalDriveTime)
	total[11] = fmt.Sprintf("%.2f", l.Summary.TotalCost)
	if err := writer.Write(total); err != nil {
		return fmt.Errorf("failed to write CSV totals: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV file: %w", err)
	}

	return nil
}
