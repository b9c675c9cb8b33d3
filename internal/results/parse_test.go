package results

import (
	"errors"
	"testing"

	"github.com/kiranshivaraju/retrainer/pkg/models"
)

func TestParseMetrics(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected models.MetricsSnapshot
	}{
		{
			name:     "two columns",
			text:     "AUC,Accuracy\n0.9,0.85",
			expected: models.MetricsSnapshot{"AUC": 0.9, "Accuracy": 0.85},
		},
		{
			name:     "crlf with blank lines",
			text:     "\r\nAUC,Accuracy\r\n\r\n0.9,0.85\r\n",
			expected: models.MetricsSnapshot{"AUC": 0.9, "Accuracy": 0.85},
		},
		{
			name:     "quoted header",
			text:     "\"Mean Absolute Error\"\n1.5e-2",
			expected: models.MetricsSnapshot{"Mean Absolute Error": 0.015},
		},
		{
			name:     "quoted header with comma",
			text:     "\"Precision, macro\",AUC\n0.7,\"0.9\"",
			expected: models.MetricsSnapshot{"Precision, macro": 0.7, "AUC": 0.9},
		},
		{
			name:     "negative and padded",
			text:     "Loss, AUC\n-0.25, 0.5",
			expected: models.MetricsSnapshot{"Loss": -0.25, "AUC": 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMetrics(tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("%s: expected %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestParseMetrics_Errors(t *testing.T) {
	for name, text := range map[string]string{
		"empty":           "",
		"single line":     "AUC,Accuracy",
		"only blanks":     "\r\n\r\n",
		"non numeric":     "AUC\nhigh",
		"column mismatch": "AUC,Accuracy\n0.9",
		"nan":             "AUC\nNaN",
		"inf":             "AUC\nInf",
		"negative inf":    "AUC\n-Infinity",
		"hex float":       "AUC\n0x1p-2",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMetrics(text)
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}
}
