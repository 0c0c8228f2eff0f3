package sync

import (
	"database/sql"
	"testing"
)

func TestIntegerType(t *testing.T) {
	tests := []struct {
		colType string
		want    bool
	}{
		{"INTEGER", true},
		{"integer", true},
		{"BIGINT", true},
		{"INT", true},
		{"TEXT", false},
		{"DATETIME", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := integerType(tt.colType); got != tt.want {
			t.Errorf("integerType(%q) = %v, want %v", tt.colType, got, tt.want)
		}
	}
}

func TestNormalizeWatermark(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		colType string
		want    string
	}{
		{"empty integer", "", "INTEGER", "0"},
		{"empty text", "", "TEXT", "1970-01-01 00:00:00"},
		{"integer passthrough", "1700000000000", "INTEGER", "1700000000000"},
		{"legacy text to millis", "2024-01-01 00:00:00", "INTEGER", "1704067200000"},
		{"garbage resets to zero", "not a timestamp", "INTEGER", "0"},
		{"text passthrough", "2024-01-01 00:00:00", "TEXT", "2024-01-01 00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeWatermark(tt.stored, tt.colType); got != tt.want {
				t.Errorf("normalizeWatermark(%q, %q) = %q, want %q",
					tt.stored, tt.colType, got, tt.want)
			}
		})
	}
}

func TestCompareTimestamps(t *testing.T) {
	tests := []struct {
		a, b    string
		colType string
		want    int
	}{
		{"2", "10", "INTEGER", -1},
		{"10", "2", "INTEGER", 1},
		{"5", "5", "INTEGER", 0},
		// lexicographic comparison would invert this pair
		{"1700000000001", "999", "INTEGER", 1},
		{"2024-01-02 00:00:00", "2024-01-01 00:00:00", "TEXT", 1},
		{"abc", "abd", "INTEGER", -1},
	}
	for _, tt := range tests {
		if got := compareTimestamps(tt.a, tt.b, tt.colType); got != tt.want {
			t.Errorf("compareTimestamps(%q, %q, %q) = %d, want %d",
				tt.a, tt.b, tt.colType, got, tt.want)
		}
	}
}

func TestWatermarkLiteral(t *testing.T) {
	if got := watermarkLiteral("1700000000000", "INTEGER"); got != "1700000000000" {
		t.Errorf("integer watermark quoted: %q", got)
	}
	if got := watermarkLiteral("2024-01-01 00:00:00", "TEXT"); got != "'2024-01-01 00:00:00'" {
		t.Errorf("text watermark literal = %q", got)
	}
	if got := watermarkLiteral("it's", "TEXT"); got != "'it''s'" {
		t.Errorf("quote escaping broken: %q", got)
	}
}

func TestLocalWins(t *testing.T) {
	val := func(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
	null := sql.NullString{}
	tests := []struct {
		name          string
		local, remote sql.NullString
		colType       string
		want          bool
	}{
		{"local newer", val("200"), val("100"), "INTEGER", true},
		{"remote newer", val("100"), val("200"), "INTEGER", false},
		{"equal replaces", val("100"), val("100"), "INTEGER", false},
		{"null remote never wins", val("100"), null, "INTEGER", true},
		{"null local always loses", null, val("100"), "INTEGER", false},
		{"both null", null, null, "INTEGER", false},
		{"text ordering", val("2024-02-01 00:00:00"), val("2024-01-01 00:00:00"), "TEXT", true},
	}
	for _, tt := range tests {
		if got := localWins(tt.local, tt.remote, tt.colType); got != tt.want {
			t.Errorf("%s: localWins = %v, want %v", tt.name, got, tt.want)
		}
	}
}
