package validation

import (
	"strings"
	"testing"
)

type sampleRecord struct {
	PatientKey string `validate:"required,max=64"`
	SiteCode   string `validate:"required,max=32"`
	Outcome    string `validate:"oneof=0 2 3 4 5 6 7"`
}

func TestStruct_Valid(t *testing.T) {
	rec := sampleRecord{PatientKey: "P123", SiteCode: "RJ122", Outcome: "3"}
	if err := Struct(rec); err != nil {
		t.Errorf("Unexpected error for valid struct: %v", err)
	}
}

func TestStruct_MissingRequired(t *testing.T) {
	rec := sampleRecord{SiteCode: "RJ122", Outcome: "5"}
	err := Struct(rec)
	if err == nil {
		t.Fatal("Expected error for missing patient key")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("Error should mention required, got: %v", err)
	}
}

func TestStruct_BadOutcome(t *testing.T) {
	rec := sampleRecord{PatientKey: "P123", SiteCode: "RJ122", Outcome: "9"}
	err := Struct(rec)
	if err == nil {
		t.Fatal("Expected error for outcome outside vocabulary")
	}
	if !strings.Contains(err.Error(), "one of") {
		t.Errorf("Error should mention allowed values, got: %v", err)
	}
}

func TestStruct_Nil(t *testing.T) {
	if err := Struct(nil); err == nil {
		t.Error("Expected error for nil value")
	}
}

func TestValidatePatientKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		expectErr bool
	}{
		{"valid", "ABC123", false},
		{"with separators", "p_12.3-x", false},
		{"empty", "", true},
		{"too long", strings.Repeat("A", 65), true},
		{"whitespace", "A B", true},
		{"control characters", "A\x00B", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePatientKey(tt.key)
			if tt.expectErr && err == nil {
				t.Error("Expected error")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSiteCode(t *testing.T) {
	if err := ValidateSiteCode("RJ122"); err != nil {
		t.Errorf("Unexpected error for valid site code: %v", err)
	}
	if err := ValidateSiteCode(""); err == nil {
		t.Error("Expected error for empty site code")
	}
	if err := ValidateSiteCode(strings.Repeat("R", 33)); err == nil {
		t.Error("Expected error for over-long site code")
	}
}
