package content

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDeriveKey(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	partner := json.RawMessage(`{"sun":"leo","moon":"pisces"}`)

	tests := []struct {
		name    string
		req     *GenerationRequest
		wantKey CacheKey
		wantErr bool
	}{
		{
			name: "daily forecast",
			req:  &GenerationRequest{UserID: "alice", Type: TypeDailyForecast},
			wantKey: CacheKey{
				UserID: "alice",
				Type:   TypeDailyForecast,
				Period: "2025-03-01",
			},
		},
		{
			name: "deep dive carries the topic",
			req:  &GenerationRequest{UserID: "alice", Type: TypeDeepDive, Topic: "saturn return"},
			wantKey: CacheKey{
				UserID: "alice",
				Type:   TypeDeepDive,
				Topic:  "saturn return",
			},
		},
		{
			name: "synastry carries fingerprint and mode",
			req: &GenerationRequest{
				UserID:       "alice",
				Type:         TypeSynastryReport,
				Mode:         SynastryFull,
				PartnerChart: partner,
			},
			wantKey: CacheKey{
				UserID:             "alice",
				Type:               TypeSynastryReport,
				PartnerFingerprint: Fingerprint(partner),
				Mode:               SynastryFull,
			},
		},
		{
			name:    "empty user id",
			req:     &GenerationRequest{Type: TypeDailyForecast},
			wantErr: true,
		},
		{
			name:    "unknown content type",
			req:     &GenerationRequest{UserID: "alice", Type: "tarot"},
			wantErr: true,
		},
		{
			name:    "deep dive without topic",
			req:     &GenerationRequest{UserID: "alice", Type: TypeDeepDive},
			wantErr: true,
		},
		{
			name:    "synastry without partner chart",
			req:     &GenerationRequest{UserID: "alice", Type: TypeSynastryReport, Mode: SynastryBrief},
			wantErr: true,
		},
		{
			name: "synastry with unknown mode",
			req: &GenerationRequest{
				UserID:       "alice",
				Type:         TypeSynastryReport,
				Mode:         "extended",
				PartnerChart: partner,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key, err := DeriveKey(tt.req, now)
			if tt.wantErr {
				var keyErr *KeyError
				if !errors.As(err, &keyErr) {
					t.Fatalf("DeriveKey() error = %v, want *KeyError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if key != tt.wantKey {
				t.Errorf("DeriveKey() = %+v, want %+v", key, tt.wantKey)
			}
		})
	}
}

func TestDeriveKey_TimezoneChangesDailyPeriod(t *testing.T) {
	t.Parallel()

	// 02:30 UTC on March 1st is the previous evening in New York.
	now := time.Date(2025, 3, 1, 2, 30, 0, 0, time.UTC)

	utcReq := &GenerationRequest{UserID: "alice", Type: TypeDailyForecast}
	nyReq := &GenerationRequest{UserID: "alice", Type: TypeDailyForecast, Timezone: "America/New_York"}

	utcKey, err := DeriveKey(utcReq, now)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	nyKey, err := DeriveKey(nyReq, now)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	if utcKey.Period != "2025-03-01" {
		t.Errorf("UTC period = %q, want 2025-03-01", utcKey.Period)
	}
	if nyKey.Period != "2025-02-28" {
		t.Errorf("New York period = %q, want 2025-02-28", nyKey.Period)
	}
}

func TestLocation_UnknownZoneFallsBackToUTC(t *testing.T) {
	t.Parallel()

	req := &GenerationRequest{Timezone: "Mars/Olympus_Mons"}
	if loc := req.Location(); loc != time.UTC {
		t.Errorf("Location() = %v, want UTC", loc)
	}

	req = &GenerationRequest{}
	if loc := req.Location(); loc != time.UTC {
		t.Errorf("Location() with empty timezone = %v, want UTC", loc)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Fingerprint([]byte(`{"sun":"leo"}`))
	b := Fingerprint([]byte(`{"sun":"leo"}`))
	c := Fingerprint([]byte(`{"sun":"virgo"}`))

	if a != b {
		t.Error("Fingerprint() not deterministic")
	}
	if a == c {
		t.Error("Fingerprint() collided for different charts")
	}
	if len(a) != 16 {
		t.Errorf("Fingerprint() length = %d, want 16", len(a))
	}
}
