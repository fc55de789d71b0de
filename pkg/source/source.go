// Package source streams raw appointment rows into the pipeline from CSV
// extracts, object storage or a relational store. Sources deliver rows as
// delivered; all cleaning belongs to the records normalizer.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dd0wney/attendnet/pkg/records"
)

// Extract column headers as delivered in the national outpatient dataset.
const (
	ColPatientKey        = "PATIENT_KEY"
	ColAge               = "AGE"
	ColOutcome           = "ATTENDED_OR_DID_NOT_ATTEND"
	ColAppointmentDate   = "APPOINTMENT_DATE"
	ColPostcodeSector    = "POSTCODE_SECTOR_OF_USUAL_ADDRESS"
	ColOrgCode           = "ORGANISATION_CODE_CODE_OF_PROVIDER"
	ColSiteCode          = "SITE_CODE_OF_TREATMENT"
	ColProviderLocation  = "PROVIDER_LOCATION"
	ColTreatmentFunction = "TREATMENT_FUNCTION_CODE"
)

// RecordSource streams raw appointment rows from a backing store.
type RecordSource interface {
	// Name identifies the source in logs and metrics.
	Name() string
	// Each calls fn for every row until the source is exhausted, fn
	// returns an error, or ctx is cancelled.
	Each(ctx context.Context, fn func(records.RawRecord) error) error
}

// CSVSource streams rows from one or more extract files in order.
type CSVSource struct {
	paths []string
}

// NewCSVSource creates a source over the given extract files.
func NewCSVSource(paths ...string) (*CSVSource, error) {
	if len(paths) == 0 {
		return nil, errors.New("source: no csv paths given")
	}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			return nil, errors.New("source: empty csv path")
		}
	}
	return &CSVSource{paths: paths}, nil
}

// Name identifies the source in logs and metrics.
func (s *CSVSource) Name() string { return "csv" }

// Each streams every file in turn.
func (s *CSVSource) Each(ctx context.Context, fn func(records.RawRecord) error) error {
	for _, path := range s.paths {
		if err := s.eachFile(ctx, path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVSource) eachFile(ctx context.Context, path string, fn func(records.RawRecord) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("source: open %s: %w", path, err)
	}
	defer file.Close()

	if err := EachCSV(ctx, file, fn); err != nil {
		return fmt.Errorf("source: %s: %w", path, err)
	}
	return nil
}

// EachCSV streams raw records from CSV data with a header row. Header names
// are matched case-insensitively; a zero-byte reader yields no rows. The
// patient key and site code columns must be present, everything else is
// optional and missing cells come through empty.
func EachCSV(ctx context.Context, r io.Reader, fn func(records.RawRecord) error) error {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1 // extracts vary in trailing columns

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToUpper(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{ColPatientKey, ColSiteCode} {
		if _, ok := colIndex[required]; !ok {
			return fmt.Errorf("column %s missing from header", required)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}

		raw := records.RawRecord{
			PatientKey:        getField(row, colIndex, ColPatientKey),
			SiteCode:          getField(row, colIndex, ColSiteCode),
			Age:               getField(row, colIndex, ColAge),
			Outcome:           getField(row, colIndex, ColOutcome),
			Date:              getField(row, colIndex, ColAppointmentDate),
			PostcodeSector:    getField(row, colIndex, ColPostcodeSector),
			ProviderLocation:  getField(row, colIndex, ColProviderLocation),
			OrgCode:           getField(row, colIndex, ColOrgCode),
			TreatmentFunction: getField(row, colIndex, ColTreatmentFunction),
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}

func getField(row []string, colIndex map[string]int, name string) string {
	if idx, ok := colIndex[name]; ok && idx < len(row) {
		return row[idx]
	}
	return ""
}
