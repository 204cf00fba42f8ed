package app_test

import (
	"testing"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/app"
)

func TestParseDisplayNumber(t *testing.T) {
	tests := []struct {
		ref     string
		want    int64
		wantErr bool
	}{
		{"INV-00042", 42, false},
		{"WTK-7", 7, false},
		{"inv-00001", 1, false},
		{"INV-", 0, true},
		{"INV-abc", 0, true},
		{"INV-00000", 0, true},
		{"42", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := app.ParseDisplayNumber(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %d", tt.ref, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDisplayNumber(%q) failed: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}
