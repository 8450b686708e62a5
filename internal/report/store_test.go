package report

import (
	"context"
	"testing"
)

func TestValidReason(t *testing.T) {
	for _, reason := range []string{"harassment", "spam", "explicit", "other"} {
		if !ValidReason(reason) {
			t.Errorf("expected %q to be a valid reason", reason)
		}
	}
	for _, reason := range []string{"", "abuse", "HARASSMENT", "spam "} {
		if ValidReason(reason) {
			t.Errorf("expected %q to be rejected", reason)
		}
	}
}

func TestCreateRejectsInvalidReason(t *testing.T) {
	// Reason validation happens before any database access, so a nil handle
	// is fine here.
	s := NewStore(nil)
	err := s.Create(context.Background(), &Report{
		ReporterUID: "a",
		ReportedUID: "b",
		Reason:      "not-a-reason",
	})
	if err == nil {
		t.Fatal("expected error for invalid reason")
	}
}
