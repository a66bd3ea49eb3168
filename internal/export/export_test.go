package export

import (
	"errors"
	"strings"
	"testing"
	"time"

	"facilityfix/api/internal/repo"
)

func TestRenderPermitHTML(t *testing.T) {
	start := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	approval := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)

	html, err := RenderPermitHTML(PermitData{
		PermitID:             "wp_123",
		Status:               "approved",
		UnitID:               "unit_204",
		RequestedBy:          "Maria Santos",
		ContractorName:       "Cruz Plumbing Services",
		ContractorContact:    "+63 917 555 0101",
		ContractorCompany:    "Cruz Bros Inc.",
		WorkDescription:      "Replace corroded riser pipe in the utility shaft.",
		ProposedStartDate:    &start,
		EstimatedDuration:    "3 days",
		SpecificInstructions: "Shut off water main before starting.",
		EntryRequirements:    "Valid ID, escort required past lobby.",
		PermitConditions:     "Work hours 09:00-17:00 weekdays only.",
		ApprovedBy:           "Admin Reyes",
		ApprovalDate:         &approval,
		GeneratedAt:          time.Now(),
	})
	if err != nil {
		t.Fatalf("RenderPermitHTML failed: %v", err)
	}

	for _, want := range []string{
		"WORK ORDER PERMIT",
		"wp_123",
		"Cruz Plumbing Services",
		"unit_204",
		"September 14, 2026",
		"Work hours 09:00-17:00 weekdays only.",
		"Admin Reyes",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered permit missing %q", want)
		}
	}
}

func TestRenderPermitHTMLOmitsEmptySections(t *testing.T) {
	html, err := RenderPermitHTML(PermitData{
		PermitID:       "wp_1",
		Status:         "approved",
		ContractorName: "Solo Electrician",
	})
	if err != nil {
		t.Fatalf("RenderPermitHTML failed: %v", err)
	}
	if strings.Contains(html, "Permit Conditions") {
		t.Error("conditions section should be omitted when empty")
	}
	if strings.Contains(html, "Approved By") {
		t.Error("approval section should be omitted when empty")
	}
	if strings.Contains(html, "Company") {
		t.Error("company row should be omitted when empty")
	}
}

func TestExportPermitRejectsUnprintableStates(t *testing.T) {
	svc := NewService()
	for _, status := range []string{repo.PermitPending, repo.PermitDenied} {
		_, err := svc.ExportPermit(repo.WorkPermit{ID: "wp_1", Status: status})
		if !errors.Is(err, ErrPermitNotPrintable) {
			t.Errorf("status %s: expected ErrPermitNotPrintable, got %v", status, err)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"a-b_c.d~e", "a-b_c.d~e"},
		{"<html>", "%3Chtml%3E"},
		{"permit & co", "permit%20%26%20co"},
	}
	for _, tt := range tests {
		if got := percentEncodeForDataURL(tt.input); got != tt.expected {
			t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"work-order-permit-wp_1", "work-order-permit-wp_1"},
		{"Permit for Unit 204", "Permit-for-Unit-204"},
		{"///", "permit"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
