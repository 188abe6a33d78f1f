package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/Togather-Foundation/orbit/internal/domain/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// The suites below run against every engine; each test function hands them a freshly
// migrated, empty store.

func testUserRepository(t *testing.T, store *Store) {
	ctx := context.Background()
	repo := store.Users()

	created := seedUser(t, store, "alice")
	require.NotZero(t, created.ID)

	_, err := repo.Create(ctx, "alice", "other", time.Now())
	require.ErrorIs(t, err, users.ErrUsernameTaken)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "hash-alice", got.PasswordHash)

	_, err = repo.GetByUsername(ctx, "Alice")
	require.ErrorIs(t, err, users.ErrUserNotFound, "usernames are case-sensitive")

	require.NoError(t, repo.UpdatePasswordHash(ctx, created.ID, "rotated"))
	got, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "rotated", got.PasswordHash)

	require.ErrorIs(t, repo.UpdatePasswordHash(ctx, created.ID+100, "x"), users.ErrUserNotFound)
	_, err = repo.GetByID(ctx, created.ID+100)
	require.ErrorIs(t, err, users.ErrUserNotFound)
}

func testEventRepository(t *testing.T, store *Store) {
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	carol := seedUser(t, store, "carol")

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	svc := events.NewService(store.Events(), zerolog.Nop(), events.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	one := 1

	t.Run("create and duplicate guard", func(t *testing.T) {
		e, err := svc.Create(ctx, alice.ID, events.CreateInput{Title: "Meetup", Date: "2099-01-01", Time: "19:00", Capacity: &one, Category: "Tech"})
		require.NoError(t, err)
		require.Equal(t, "alice", e.CreatorName)
		require.Equal(t, 1, *e.Capacity)
		require.Equal(t, "19:00", e.Time)

		_, err = svc.Create(ctx, alice.ID, events.CreateInput{Title: "Meetup", Date: "2099-01-01"})
		require.ErrorIs(t, err, events.ErrDuplicateEvent)
	})

	t.Run("capacity scenario", func(t *testing.T) {
		list, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: "Meetup"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		meetup := list[0]

		require.NoError(t, svc.Join(ctx, bob.ID, meetup.ID))
		require.ErrorIs(t, svc.Join(ctx, bob.ID, meetup.ID), events.ErrAlreadyJoined)
		require.ErrorIs(t, svc.Join(ctx, carol.ID, meetup.ID), events.ErrEventFull)

		got, err := svc.Get(ctx, bob.ID, meetup.ID)
		require.NoError(t, err)
		require.Equal(t, 1, got.ParticipantCount)
		require.True(t, got.Joined)

		require.NoError(t, svc.Leave(ctx, bob.ID, meetup.ID))
		require.ErrorIs(t, svc.Leave(ctx, bob.ID, meetup.ID), events.ErrNotParticipant)
		require.NoError(t, svc.Join(ctx, carol.ID, meetup.ID))

		detail, err := svc.Detail(ctx, carol.ID, meetup.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"carol"}, detail.ParticipantNames)
	})

	t.Run("listings partition and filter", func(t *testing.T) {
		for i, date := range []string{"2026-10-10", "2026-10-18", "2026-10-19"} {
			_, err := svc.Create(ctx, bob.ID, events.CreateInput{
				Title:       fmt.Sprintf("Walk %d", i),
				Date:        date,
				Description: "50% off_snacks",
				Category:    "Sports",
			})
			require.NoError(t, err)
		}

		upcoming, err := svc.ListUpcoming(ctx, carol.ID, events.Filters{})
		require.NoError(t, err)
		past, err := svc.ListPast(ctx, carol.ID, events.Filters{})
		require.NoError(t, err)
		require.Len(t, upcoming, 2)
		require.Len(t, past, 2)
		require.Equal(t, "2026-10-19", upcoming[0].Date)
		require.Equal(t, "2026-10-18", past[0].Date)
		require.True(t, upcoming[1].Joined, "carol joined the meetup")
		require.Equal(t, 1, upcoming[1].ParticipantCount)

		byCategory, err := svc.ListPast(ctx, 0, events.Filters{Category: "Sports"})
		require.NoError(t, err)
		require.Len(t, byCategory, 2)

		wildcard, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: "%"})
		require.NoError(t, err)
		require.Len(t, wildcard, 1, "percent is matched literally")
		require.Equal(t, "Walk 2", wildcard[0].Title)

		caseless, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: "MEETUP"})
		require.NoError(t, err)
		require.Len(t, caseless, 1)

		categories, err := svc.Categories(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"Sports", "Tech"}, categories)

		created, err := svc.ListCreatedBy(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, created, 3)
		joined, err := svc.ListJoinedBy(ctx, carol.ID)
		require.NoError(t, err)
		require.Len(t, joined, 1)
	})

	t.Run("comments newest first", func(t *testing.T) {
		list, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: "Meetup"})
		require.NoError(t, err)
		eventID := list[0].ID

		_, err = svc.AddComment(ctx, bob.ID, eventID, "first")
		require.NoError(t, err)
		now = now.Add(time.Minute)
		c, err := svc.AddComment(ctx, carol.ID, eventID, "second")
		require.NoError(t, err)
		require.Equal(t, "carol", c.Username)

		_, err = svc.AddComment(ctx, bob.ID, eventID+1000, "lost")
		require.ErrorIs(t, err, events.ErrNotFound)

		comments, err := svc.ListComments(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		require.Equal(t, "second", comments[0].Content)
		require.Equal(t, "first", comments[1].Content)
	})

	t.Run("delete is creator only and cascades", func(t *testing.T) {
		list, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: "Meetup"})
		require.NoError(t, err)
		eventID := list[0].ID

		require.ErrorIs(t, svc.Delete(ctx, bob.ID, eventID), events.ErrForbidden)
		require.NoError(t, svc.Delete(ctx, alice.ID, eventID))
		require.ErrorIs(t, svc.Delete(ctx, alice.ID, eventID), events.ErrNotFound)

		var participants, comments int
		require.NoError(t, store.DB().QueryRowContext(ctx, store.Dialect().Rebind(`SELECT COUNT(*) FROM participants WHERE event_id = ?`), eventID).Scan(&participants))
		require.NoError(t, store.DB().QueryRowContext(ctx, store.Dialect().Rebind(`SELECT COUNT(*) FROM comments WHERE event_id = ?`), eventID).Scan(&comments))
		require.Zero(t, participants)
		require.Zero(t, comments)
	})

	t.Run("purge expired", func(t *testing.T) {
		deleted, err := svc.PurgeExpired(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted, "only the event dated 2026-10-10 is older than the window")

		past, err := svc.ListPast(ctx, 0, events.Filters{})
		require.NoError(t, err)
		require.Len(t, past, 1)
	})

	t.Run("concurrent joins respect capacity", func(t *testing.T) {
		two := 2
		e, err := svc.Create(ctx, alice.ID, events.CreateInput{Title: "Popular", Date: "2099-06-01", Capacity: &two})
		require.NoError(t, err)

		joiners := make([]users.User, 6)
		for i := range joiners {
			joiners[i] = seedUser(t, store, fmt.Sprintf("joiner%d", i))
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(joiners))
		for _, u := range joiners {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				errs <- svc.Join(ctx, id, e.ID)
			}(u.ID)
		}
		wg.Wait()
		close(errs)

		accepted := 0
		for err := range errs {
			if err == nil {
				accepted++
				continue
			}
			require.ErrorIs(t, err, events.ErrEventFull)
		}
		require.Equal(t, 2, accepted)

		got, err := svc.Get(ctx, 0, e.ID)
		require.NoError(t, err)
		require.Equal(t, 2, got.ParticipantCount)
	})

	t.Run("search folds case beyond ASCII", func(t *testing.T) {
		_, err := svc.Create(ctx, carol.ID, events.CreateInput{Title: "Café Night", Date: "2099-07-01", Category: "Tech"})
		require.NoError(t, err)

		for _, search := range []string{"café", "CAFÉ", "Café NIGHT"} {
			found, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: search})
			require.NoError(t, err)
			require.Len(t, found, 1, search)
			require.Equal(t, "Café Night", found[0].Title)
		}

		found, err := svc.ListUpcoming(ctx, 0, events.Filters{Search: "cafe"})
		require.NoError(t, err)
		require.Empty(t, found, "accents are not folded")
	})

	t.Run("unique index backs the duplicate guard", func(t *testing.T) {
		params := events.EventCreateParams{
			CreatorID: bob.ID, Title: "Double submit", Date: "2099-08-01",
			Category: events.DefaultCategory, CreatedAt: now,
		}
		_, err := store.Events().Create(ctx, params)
		require.NoError(t, err)
		_, err = store.Events().Create(ctx, params)
		require.ErrorIs(t, err, events.ErrDuplicateEvent)

		params.CreatorID = carol.ID
		_, err = store.Events().Create(ctx, params)
		require.NoError(t, err, "the guard is per creator")
	})

	t.Run("concurrent duplicate submits create one event", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Create(ctx, alice.ID, events.CreateInput{Title: "Race", Date: "2099-09-01"})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		created := 0
		for err := range errs {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, events.ErrDuplicateEvent)
		}
		require.Equal(t, 1, created)
	})
}
