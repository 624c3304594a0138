package semver

import "testing"

const versionTestPrefix = "semver:version_test"

func TestValidShape(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1.0", true},
		{"1.0.0", true},
		{"12.34.56", true},
		{"1", false},
		{"1.0.0.0", false},
		{"v1.0.0", false},
		{"1.0.0-beta", false},
		{"", false},
		{"a.b", false},
	}
	for _, tt := range tests {
		if got := ValidShape(tt.input); got != tt.want {
			t.Errorf("%s - ValidShape(%q) = %v, want %v", versionTestPrefix, tt.input, got, tt.want)
		}
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		name   string
		client string
		server string
		want   bool
	}{
		{"same version", "1.0.0", "1.0.0", true},
		{"server newer minor", "1.0", "1.3.0", true},
		{"server older minor", "1.4.0", "1.3.0", false},
		{"different major", "2.0.0", "1.3.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compatible(tt.client, tt.server)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", versionTestPrefix, err)
			}
			if got != tt.want {
				t.Errorf("%s - Compatible(%q, %q) = %v, want %v", versionTestPrefix, tt.client, tt.server, got, tt.want)
			}
		})
	}
}

func TestCompatible_InvalidServerVersion(t *testing.T) {
	if _, err := Compatible("1.0.0", "not-a-version"); err == nil {
		t.Errorf("%s - expected error for invalid server version", versionTestPrefix)
	}
}
