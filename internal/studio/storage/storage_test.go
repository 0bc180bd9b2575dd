package storage

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/cuongbtq/render-studio/internal/studio/events"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	script, err := fs.ReadFile(Migrations, MigrationsDir+"/"+entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(script), "render_transitions")
	assert.Contains(t, string(script), "event_id")
}

// openTestDB connects to the database named by STUDIO_TEST_DATABASE_URL
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("STUDIO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STUDIO_TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	script, err := fs.ReadFile(Migrations, MigrationsDir+"/001_render_transitions.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(script))
	require.NoError(t, err)

	return db
}

func TestStorage_InsertAndList(t *testing.T) {
	db := openTestDB(t)
	s := NewStorage(db)
	ctx := context.Background()

	session := "test-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	phases := []domain.Phase{domain.PhaseSubmitting, domain.PhaseQueued, domain.PhaseProcessing, domain.PhaseDone}
	var inserted []events.TransitionEvent
	for i, p := range phases {
		ev := events.NewTransitionEvent(session, "shop", i+1, domain.Job{
			ID:        "J1",
			Phase:     p,
			Progress:  i * 30,
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		})
		ok, err := s.InsertTransition(ctx, &ev)
		require.NoError(t, err)
		assert.True(t, ok)
		inserted = append(inserted, ev)
	}

	// redelivery is ignored
	ok, err := s.InsertTransition(ctx, &inserted[1])
	require.NoError(t, err)
	assert.False(t, ok)

	page, err := s.ListTransitions(ctx, TransitionFilter{SessionID: session, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3, "one extra row signals more pages")
	assert.Equal(t, domain.PhaseSubmitting, page[0].Phase)
	assert.Equal(t, domain.PhaseQueued, page[1].Phase)

	rest, err := s.ListTransitions(ctx, TransitionFilter{
		SessionID: session,
		PageSize:  10,
		Cursor:    &TransitionCursor{Seq: page[1].Seq, EventID: page[1].EventID},
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, domain.PhaseProcessing, rest[0].Phase)
	assert.Equal(t, domain.PhaseDone, rest[1].Phase)
	assert.Equal(t, inserted[3].EventID, rest[1].EventID)
}

func TestStorage_ListOrdersBySeqWithinOneInstant(t *testing.T) {
	db := openTestDB(t)
	s := NewStorage(db)
	ctx := context.Background()

	session := "test-" + uuid.NewString()
	at := time.Now().UTC().Truncate(time.Microsecond)

	phases := []domain.Phase{domain.PhaseSubmitting, domain.PhaseQueued, domain.PhaseProcessing, domain.PhaseDone}
	// inserted out of order and all stamped with the same instant
	for _, i := range []int{3, 1, 0, 2} {
		ev := events.NewTransitionEvent(session, "", i+1, domain.Job{ID: "J1", Phase: phases[i], UpdatedAt: at})
		_, err := s.InsertTransition(ctx, &ev)
		require.NoError(t, err)
	}

	page, err := s.ListTransitions(ctx, TransitionFilter{SessionID: session, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page, len(phases))
	for i, ev := range page {
		assert.Equal(t, i+1, ev.Seq)
		assert.Equal(t, phases[i], ev.Phase)
	}
}
