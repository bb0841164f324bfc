package identity

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"Ana", "Ana", false},
		{"  Ana Maria \t", "Ana Maria", false},
		{"João", "João", false}, // decomposed -> composed
		{"Ana\x00", "Ana", false},
		{"", "", true},
		{"   ", "", true},
		{"../etc", "", true},
		{`a\b`, "", true},
		{"..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeName(%q) = %q, expected error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"João Silva", "joao silva"},
		{"joao-silva", "joao silva"},
		{"JOAO_SILVA", "joao silva"},
		{"  Ana   Maria ", "ana maria"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MatchKey(tt.input); got != tt.expected {
				t.Errorf("MatchKey(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
