package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/celestine-app/celestine/internal/domain/content"
	"github.com/celestine-app/celestine/internal/domain/profile"
	"github.com/celestine-app/celestine/internal/port/outbound"
)

func openTestStore(t *testing.T) *ProfileStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "celestine.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestProfileStore_SaveLoadProfile(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	p := &profile.Profile{
		UserID:    "user-1",
		Name:      "Alice",
		Tier:      content.TierPremium,
		Timezone:  "America/New_York",
		BirthData: json.RawMessage(`{"sun":"aries"}`),
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	got, err := store.LoadProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got.Name != "Alice" || got.Tier != content.TierPremium || got.Timezone != "America/New_York" {
		t.Errorf("loaded profile = %+v", got)
	}
	if string(got.BirthData) != `{"sun":"aries"}` {
		t.Errorf("BirthData = %s", got.BirthData)
	}
}

func TestProfileStore_SaveProfileUpsert(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	p := &profile.Profile{UserID: "user-1", Name: "Alice", Tier: content.TierFree}
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	p.Tier = content.TierPremium
	p.Name = "Alice B"
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() upsert error = %v", err)
	}

	got, err := store.LoadProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got.Tier != content.TierPremium || got.Name != "Alice B" {
		t.Errorf("upserted profile = %+v", got)
	}
}

func TestProfileStore_LoadProfileNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.LoadProfile(context.Background(), "nobody")
	if !errors.Is(err, outbound.ErrProfileNotFound) {
		t.Errorf("LoadProfile() = %v, want ErrProfileNotFound", err)
	}
}

func TestProfileStore_SaveLoadContent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	gc := &profile.GeneratedContent{
		UserID:      "user-1",
		Key:         "user-1|daily_forecast|2026-03-01",
		Type:        content.TypeDailyForecast,
		Payload:     "the stars align",
		GeneratedAt: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
	}
	if err := store.SaveContent(ctx, gc); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	got, err := store.LoadContent(ctx, "user-1", gc.Key)
	if err != nil {
		t.Fatalf("LoadContent() error = %v", err)
	}
	if got.Payload != "the stars align" || got.Type != content.TypeDailyForecast {
		t.Errorf("loaded content = %+v", got)
	}
	if !got.GeneratedAt.Equal(gc.GeneratedAt) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, gc.GeneratedAt)
	}
}

func TestProfileStore_SaveContentUpsert(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	gc := &profile.GeneratedContent{
		UserID:      "user-1",
		Key:         "user-1|daily_forecast|2026-03-01",
		Type:        content.TypeDailyForecast,
		Payload:     "first draft",
		GeneratedAt: time.Now().UTC(),
	}
	if err := store.SaveContent(ctx, gc); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	gc.Payload = "regenerated"
	if err := store.SaveContent(ctx, gc); err != nil {
		t.Fatalf("SaveContent() upsert error = %v", err)
	}

	got, err := store.LoadContent(ctx, "user-1", gc.Key)
	if err != nil {
		t.Fatalf("LoadContent() error = %v", err)
	}
	if got.Payload != "regenerated" {
		t.Errorf("Payload = %q, want regenerated", got.Payload)
	}
}

func TestProfileStore_LoadContentNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.LoadContent(context.Background(), "user-1", "missing-key")
	if !errors.Is(err, outbound.ErrContentNotFound) {
		t.Errorf("LoadContent() = %v, want ErrContentNotFound", err)
	}
}

func TestProfileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "celestine.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.SaveProfile(ctx, &profile.Profile{UserID: "user-1", Name: "Alice", Tier: content.TierFree}); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.LoadProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadProfile() after reopen error = %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", got.Name)
	}
}
