package main

import (
	"testing"
	"time"
)

func TestParseDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339", input: "2026-04-01T12:00:00Z", want: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)},
		{name: "date only", input: "2026-04-01", want: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{name: "garbage", input: "qwzx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDue(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDue(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDue(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDue(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDue_NaturalLanguage(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	got, err := parseDue("tomorrow", now)
	if err != nil {
		t.Fatalf("parseDue(tomorrow) failed: %v", err)
	}
	if y, m, d := got.Date(); y != 2026 || m != time.March || d != 11 {
		t.Errorf("parseDue(tomorrow) = %v, want 2026-03-11", got)
	}
}

func TestParseID(t *testing.T) {
	for _, s := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(s); err == nil {
			t.Errorf("parseID(%q) succeeded, want error", s)
		}
	}
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
}
