package fiscal

import (
	"errors"
	"testing"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		action  Action
		current Status
		want    Status
		wantErr bool
	}{
		{ActionConfirm, StatusPending, StatusProvisioned, false},
		{ActionConfirm, StatusReview, StatusProvisioned, false},
		{ActionConfirm, StatusProvisioned, "", true},
		{ActionConfirm, StatusProcessed, "", true},
		{ActionConfirm, StatusApproved, "", true},
		{ActionConfirm, StatusPaid, "", true},

		{ActionReview, StatusPending, StatusReview, false},
		{ActionReview, StatusProvisioned, StatusReview, false},
		{ActionReview, StatusProcessed, StatusReview, false},
		{ActionReview, StatusReview, "", true},
		{ActionReview, StatusApproved, "", true},
		{ActionReview, StatusPaid, "", true},

		{Action("APAGAR"), StatusPending, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.current), func(t *testing.T) {
			got, err := NextStatus(tt.action, tt.current)
			if tt.wantErr {
				var te *InvalidTransitionError
				if !errors.As(err, &te) {
					t.Fatalf("NextStatus() error = %v, want *InvalidTransitionError", err)
				}
				if te.Current != tt.current {
					t.Errorf("Current = %q, want %q", te.Current, tt.current)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NextStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateComment(t *testing.T) {
	for _, c := range []string{"", "   ", "\t\n"} {
		err := ValidateComment(c)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("ValidateComment(%q) = %v, want *ValidationError", c, err)
		}
	}
	if err := ValidateComment("ok"); err != nil {
		t.Errorf("ValidateComment(ok) = %v, want nil", err)
	}
}
