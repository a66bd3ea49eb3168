package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "noreply@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "noreply@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "noreply@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderWorkflowUpdateTemplate(t *testing.T) {
	data := UpdateData{
		AppName:       "FacilityFix",
		RecipientName: "Maria Santos",
		Title:         "Job Service Update",
		Message:       "The status of your maintenance request changed to in_progress.",
		ReferenceID:   "js_abc123",
	}

	html, err := renderTemplate(workflowUpdateTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "FacilityFix") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Maria Santos") {
		t.Error("template should contain recipient name")
	}
	if !strings.Contains(html, "in_progress") {
		t.Error("template should contain the message body")
	}
	if !strings.Contains(html, "js_abc123") {
		t.Error("template should contain the reference id")
	}
}

func TestRenderWorkflowUpdateTemplateWithoutReference(t *testing.T) {
	html, err := renderTemplate(workflowUpdateTemplate, UpdateData{
		AppName:       "FacilityFix",
		RecipientName: "Maria Santos",
		Title:         "New Concern Slip",
		Message:       "A new concern has been submitted.",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "Reference:") {
		t.Error("reference block should be omitted when no id is set")
	}
}
