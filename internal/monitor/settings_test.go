package monitor

import (
	"errors"
	"testing"
	"time"

	"stockwatch/internal/product"
)

func TestSettingsValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(*Settings) {}, false},
		{"equal bounds", func(s *Settings) { s.IntervalMin, s.IntervalMax = 5, 5 }, false},
		{"zero cooldown", func(s *Settings) { s.Cooldown = 0 }, false},
		{"min above max", func(s *Settings) { s.IntervalMin, s.IntervalMax = 7, 6 }, true},
		{"negative min", func(s *Settings) { s.IntervalMin = -1 }, true},
		{"no retry", func(s *Settings) { s.RetryDelay = 0 }, true},
		{"pacing inverted", func(s *Settings) { s.PacingMin, s.PacingMax = 3*time.Second, time.Second }, true},
		{"empty marker", func(s *Settings) { s.Marker = "" }, true},
		{"negative cooldown", func(s *Settings) { s.Cooldown = -time.Second }, true},
		{"blank url", func(s *Settings) { s.Products = []product.Descriptor{{Name: "x", URL: " "}} }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSettings(prodA)
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettingsValidateNoProducts(t *testing.T) {
	t.Parallel()
	if err := DefaultSettings().Validate(); !errors.Is(err, ErrNoProducts) {
		t.Fatalf("Validate() = %v, want ErrNoProducts", err)
	}
}
