package version

import (
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		target   string
		expected int
		wantErr  bool
	}{
		{"older patch", "0.6.10", "0.6.11", -1, false},
		{"older minor", "0.6.10", "0.7.0", -1, false},
		{"numeric not lexical", "0.6.9", "0.6.10", -1, false},
		{"equal", "0.7.0", "0.7.0", 0, false},
		{"newer", "0.7.1", "0.7.0", 1, false},
		{"v prefix current", "v0.6.10", "0.7.0", -1, false},
		{"v prefix target", "0.6.10", "v0.7.0", -1, false},
		{"prerelease less than release", "0.7.0-rc.1", "0.7.0", -1, false},
		{"invalid current", "unknown", "0.7.0", 0, true},
		{"invalid target", "0.7.0", "latest", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compare(tt.current, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.current, tt.target, result, tt.expected)
			}
		})
	}
}

func TestIsUpgrade(t *testing.T) {
	tests := []struct {
		current  string
		target   string
		expected bool
	}{
		{"0.6.10", "0.7.0", true},
		{"0.7.0", "0.7.0", false},
		{"0.8.0", "0.7.0", false},
	}

	for _, tt := range tests {
		result, err := IsUpgrade(tt.current, tt.target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != tt.expected {
			t.Errorf("IsUpgrade(%q, %q) = %v, want %v", tt.current, tt.target, result, tt.expected)
		}
	}
}

func TestNormalizeAndTag(t *testing.T) {
	if Normalize("v0.7.0") != "0.7.0" {
		t.Errorf("Normalize(v0.7.0) = %q", Normalize("v0.7.0"))
	}
	if Tag("0.7.0") != "v0.7.0" || Tag("v0.7.0") != "v0.7.0" {
		t.Errorf("Tag mismatch: %q %q", Tag("0.7.0"), Tag("v0.7.0"))
	}
	if !Valid("0.6.10") || Valid("not-a-version") {
		t.Error("Valid returned unexpected result")
	}
}
