package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/internal/database/sqldb"
	"foodietrack/backend/go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sqldb.Open(&config.SQLConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close(db) })

	s := NewStore(db)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

// tick makes the store clock advance one second per call so ordering and updated_at are observable.
func tick(s *Store) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func pref(userID, value string) *models.Preference {
	return &models.Preference{UserID: userID, Value: value}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.True(t, s.DB.Migrator().HasIndex(&models.Preference{}, "idx_preferences_natural_key"))
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreatePreference(ctx, &models.Preference{
		UserID:   "u1",
		Value:    "  Cilantro ",
		Metadata: models.Metadata{"source": models.String("voice")},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Cilantro", created.Value)
	assert.Equal(t, models.DefaultCategory, created.Category)
	assert.Equal(t, models.DefaultPreferenceType, created.PreferenceType)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	found, err := s.FindByNaturalKey(ctx, "u1", "cilantro", "food", "dislike")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Cilantro", found.Value, "original case is preserved")
	v, ok := found.Metadata["source"].AsString()
	assert.True(t, ok)
	assert.Equal(t, "voice", v)
}

func TestFindByNaturalKey_Missing(t *testing.T) {
	s := newTestStore(t)
	found, err := s.FindByNaturalKey(context.Background(), "u1", "olives", "food", "dislike")
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestCreatePreference_Conflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreatePreference(ctx, pref("u1", "cilantro"))
	require.NoError(t, err)

	_, err = s.CreatePreference(ctx, pref("u1", "CILANTRO"))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)
}

func TestUpdateMetadata_Merges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tick(s)

	created, err := s.CreatePreference(ctx, &models.Preference{
		UserID:   "u1",
		Value:    "cilantro",
		Metadata: models.Metadata{"a": models.Number(1)},
	})
	require.NoError(t, err)

	updated, err := s.UpdateMetadata(ctx, created.ID, models.Metadata{"b": models.Number(2)})
	require.NoError(t, err)
	assert.True(t, updated.Metadata.Equal(models.Metadata{"a": models.Number(1), "b": models.Number(2)}))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	reloaded, err := s.GetPreference(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Metadata.Equal(updated.Metadata))
	assert.True(t, reloaded.UpdatedAt.Equal(updated.UpdatedAt))
	assert.True(t, reloaded.CreatedAt.Equal(created.CreatedAt))
}

func TestUpdateMetadata_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreatePreference(ctx, &models.Preference{
		UserID:   "u1",
		Value:    "peanuts",
		Metadata: models.Metadata{"severity": models.String("mild")},
	})
	require.NoError(t, err)

	updated, err := s.UpdateMetadata(ctx, created.ID, models.Metadata{"severity": models.String("severe")})
	require.NoError(t, err)
	sev, _ := updated.Metadata["severity"].AsString()
	assert.Equal(t, "severe", sev)
}

func TestUpdateMetadata_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpdateMetadata(context.Background(), 999, models.Metadata{"x": models.Bool(true)})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "got %v", err)
}

func TestListPreferences_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tick(s)

	for _, p := range []*models.Preference{
		{UserID: "u1", Value: "cilantro"},
		{UserID: "u1", Value: "espresso", Category: "drink", PreferenceType: "like"},
		{UserID: "u2", Value: "cilantro"},
		{UserID: "u1", Value: "olives"},
	} {
		_, err := s.CreatePreference(ctx, p)
		require.NoError(t, err)
	}

	all, err := s.ListPreferences(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cilantro", "espresso", "olives"}, values(all))
	for _, p := range all {
		assert.Equal(t, "u1", p.UserID)
	}

	food := "food"
	foods, err := s.ListPreferences(ctx, "u1", &food)
	require.NoError(t, err)
	assert.Equal(t, []string{"cilantro", "olives"}, values(foods))

	none, err := s.ListPreferences(ctx, "nobody", nil)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListPreferences_EmptyCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreatePreference(ctx, pref("u1", "cilantro"))
	require.NoError(t, err)

	drink := "drink"
	got, err := s.ListPreferences(ctx, "u1", &drink)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListPreferences_SameTimestampOrderedByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	for _, v := range []string{"c", "a", "b"} {
		_, err := s.CreatePreference(ctx, pref("u1", v))
		require.NoError(t, err)
	}
	got, err := s.ListPreferences(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, values(got))
}

func TestUpsertPreference_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tick(s)

	first, created, err := s.UpsertPreference(ctx, &models.Preference{
		UserID:   "u1",
		Value:    "Cilantro",
		Metadata: models.Metadata{"a": models.Number(1)},
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.UpsertPreference(ctx, &models.Preference{
		UserID:   "u1",
		Value:    " cilantro",
		Metadata: models.Metadata{"b": models.Number(2)},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Cilantro", second.Value)
	assert.True(t, second.Metadata.Equal(models.Metadata{"a": models.Number(1), "b": models.Number(2)}))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	all, err := s.ListPreferences(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertPreference_UserIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _, err := s.UpsertPreference(ctx, pref("alice", "cilantro"))
	require.NoError(t, err)
	b, created, err := s.UpsertPreference(ctx, pref("bob", "cilantro"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)

	bobs, err := s.ListPreferences(ctx, "bob", nil)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, b.ID, bobs[0].ID)
}

func TestUpsertPreference_DistinctTypeIsDistinctRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.UpsertPreference(ctx, &models.Preference{UserID: "u1", Value: "spicy", PreferenceType: "like"})
	require.NoError(t, err)
	_, created, err := s.UpsertPreference(ctx, &models.Preference{UserID: "u1", Value: "spicy", PreferenceType: "dislike"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestUpsertPreference_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.UpsertPreference(ctx, &models.Preference{
				UserID:   "u1",
				Value:    strings.Repeat(" ", i%2) + "Cilantro",
				Metadata: models.Metadata{fmt.Sprintf("k%d", i): models.Number(float64(i))},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.ListPreferences(ctx, "u1", nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Metadata, 8)
}

func TestDeletePreference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.CreatePreference(ctx, pref("u1", "cilantro"))
	require.NoError(t, err)

	err = s.DeletePreference(ctx, "someone-else", p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	require.NoError(t, s.DeletePreference(ctx, "u1", p.ID))
	_, err = s.GetPreference(ctx, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestStorageErrorOnClosedDB(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, sqldb.Close(s.DB))

	_, err := s.ListPreferences(context.Background(), "u1", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindStorage), "got %v", err)

	_, _, err = s.UpsertPreference(context.Background(), pref("u1", "cilantro"))
	assert.True(t, apperr.IsKind(err, apperr.KindStorage), "got %v", err)
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListPreferences(ctx, "u1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperr.IsKind(err, apperr.KindStorage))
}

func values(prefs []*models.Preference) []string {
	out := make([]string, len(prefs))
	for i, p := range prefs {
		out[i] = p.Value
	}
	return out
}
