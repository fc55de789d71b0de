package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dd0wney/attendnet/pkg/records"
)

const extractHeader = "PATIENT_KEY,AGE,ATTENDED_OR_DID_NOT_ATTEND,APPOINTMENT_DATE," +
	"POSTCODE_SECTOR_OF_USUAL_ADDRESS,ORGANISATION_CODE_CODE_OF_PROVIDER," +
	"SITE_CODE_OF_TREATMENT,PROVIDER_LOCATION,TREATMENT_FUNCTION_CODE"

func collect(t *testing.T, data string) []records.RawRecord {
	t.Helper()
	var out []records.RawRecord
	err := EachCSV(context.Background(), strings.NewReader(data), func(raw records.RawRecord) error {
		out = append(out, raw)
		return nil
	})
	if err != nil {
		t.Fatalf("EachCSV failed: %v", err)
	}
	return out
}

func TestEachCSV_MapsExtractColumns(t *testing.T) {
	data := extractHeader + "\n" +
		"alpha,34,3,2025-04-01,CB1 2,RGT,RGT01,Cambridge,110\n" +
		"beta,,5,,,,RGT02,,\n"

	rows := collect(t, data)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.PatientKey != "alpha" || first.SiteCode != "RGT01" {
		t.Errorf("first row identity = %q/%q", first.PatientKey, first.SiteCode)
	}
	if first.Age != "34" || first.Outcome != "3" || first.Date != "2025-04-01" {
		t.Errorf("first row visit = %q/%q/%q", first.Age, first.Outcome, first.Date)
	}
	if first.PostcodeSector != "CB1 2" || first.OrgCode != "RGT" ||
		first.ProviderLocation != "Cambridge" || first.TreatmentFunction != "110" {
		t.Errorf("first row extras = %+v", first)
	}

	second := rows[1]
	if second.PatientKey != "beta" || second.SiteCode != "RGT02" {
		t.Errorf("second row identity = %q/%q", second.PatientKey, second.SiteCode)
	}
	if second.Age != "" || second.Date != "" || second.OrgCode != "" {
		t.Errorf("blank cells should stay empty: %+v", second)
	}
}

func TestEachCSV_HeaderMatchingIsCaseInsensitive(t *testing.T) {
	data := "patient_key, Site_Code_Of_Treatment ,age\nalpha,RGT01,40\n"

	rows := collect(t, data)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].PatientKey != "alpha" || rows[0].SiteCode != "RGT01" || rows[0].Age != "40" {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestEachCSV_RaggedRows(t *testing.T) {
	// Trailing columns are optional in older extracts.
	data := extractHeader + "\nalpha,34,3\n"

	rows := collect(t, data)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].PatientKey != "alpha" || rows[0].SiteCode != "" || rows[0].TreatmentFunction != "" {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestEachCSV_RequiresKeyColumns(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no patient key", "AGE,SITE_CODE_OF_TREATMENT"},
		{"no site code", "PATIENT_KEY,AGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EachCSV(context.Background(), strings.NewReader(tt.header+"\nx,y\n"), func(records.RawRecord) error {
				t.Fatal("no rows should be delivered")
				return nil
			})
			if err == nil {
				t.Error("missing key column should fail")
			}
		})
	}
}

func TestEachCSV_EmptyInputYieldsNoRows(t *testing.T) {
	err := EachCSV(context.Background(), strings.NewReader(""), func(records.RawRecord) error {
		t.Fatal("no rows should be delivered")
		return nil
	})
	if err != nil {
		t.Fatalf("empty input should not fail: %v", err)
	}

	// A header with no data rows is also fine.
	rows := collect(t, extractHeader+"\n")
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}

func TestEachCSV_CallbackErrorStopsStream(t *testing.T) {
	data := extractHeader + "\nalpha,,3,,,,RGT01,,\nbeta,,5,,,,RGT02,,\n"
	wantErr := errors.New("full")

	seen := 0
	err := EachCSV(context.Background(), strings.NewReader(data), func(records.RawRecord) error {
		seen++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
	if seen != 1 {
		t.Errorf("callback ran %d times, want 1", seen)
	}
}

func TestEachCSV_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := extractHeader + "\nalpha,,3,,,,RGT01,,\n"
	err := EachCSV(ctx, strings.NewReader(data), func(records.RawRecord) error {
		t.Fatal("no rows should be delivered after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCSVSource_StreamsFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, body string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		return path
	}
	first := writeFile("extract_1.csv", extractHeader+"\nalpha,,3,,,,RGT01,,\n")
	second := writeFile("extract_2.csv", extractHeader+"\nbeta,,5,,,,RGT02,,\n")

	src, err := NewCSVSource(first, second)
	if err != nil {
		t.Fatalf("NewCSVSource failed: %v", err)
	}
	if src.Name() != "csv" {
		t.Errorf("name = %s", src.Name())
	}

	var keys []string
	err = src.Each(context.Background(), func(raw records.RawRecord) error {
		keys = append(keys, raw.PatientKey)
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
		t.Errorf("keys = %v, want [alpha beta]", keys)
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	src, err := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("NewCSVSource failed: %v", err)
	}
	err = src.Each(context.Background(), func(records.RawRecord) error { return nil })
	if err == nil {
		t.Error("missing file should fail")
	}
}

func TestNewCSVSource_Validation(t *testing.T) {
	if _, err := NewCSVSource(); err == nil {
		t.Error("no paths should be rejected")
	}
	if _, err := NewCSVSource("  "); err == nil {
		t.Error("blank path should be rejected")
	}
}

func TestNewPostgresSource_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := NewPostgresSource(ctx, PostgresOptions{}); err == nil {
		t.Error("missing database url should be rejected")
	}
	if _, err := NewPostgresSource(ctx, PostgresOptions{
		DatabaseURL: "postgres://localhost/attendnet",
		Table:       "appointments; drop table users",
	}); err == nil {
		t.Error("non-identifier table should be rejected")
	}
}

func TestNewS3Source_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := NewS3Source(ctx, S3Options{Keys: []string{"extract.csv"}}); err == nil {
		t.Error("missing bucket should be rejected")
	}
	if _, err := NewS3Source(ctx, S3Options{Bucket: "extracts"}); err == nil {
		t.Error("missing keys should be rejected")
	}
}
