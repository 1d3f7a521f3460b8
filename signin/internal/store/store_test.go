package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cloudguard/common/models"
)

func consoleLogin(id, user, outcome string, ts int64) *models.ActivityEvent {
	identity := "IAMUser-" + user
	return &models.ActivityEvent{
		ID:         id,
		Source:     "aws.signin",
		DetailType: "AWS Console Sign In via CloudTrail",
		Time:       time.Unix(ts, 0).UTC().Format(time.RFC3339),
		Detail: models.Detail{
			EventName:        models.EventConsoleLogin,
			UserIdentity:     models.UserIdentity{Type: models.IdentityIAMUser, UserName: user},
			SourceIPAddress:  "198.51.100.4",
			ResponseElements: &models.ResponseElements{ConsoleLogin: outcome},
		},
		EventName:    models.EventConsoleLogin,
		UserIdentity: identity,
		Timestamp:    ts,
		TTL:          time.Now().Add(365 * 24 * time.Hour).Unix(),
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Unix()

	events := []*models.ActivityEvent{
		consoleLogin("f-edge", "alice", models.LoginFailure, now-3600),
		consoleLogin("f-1", "alice", models.LoginFailure, now-100),
		consoleLogin("f-now", "alice", models.LoginFailure, now),
		consoleLogin("f-old", "alice", models.LoginFailure, now-3601),
		consoleLogin("s-1", "alice", models.LoginSuccess, now-50),
		consoleLogin("b-1", "bob", models.LoginFailure, now-10),
	}
	other := consoleLogin("x-1", "alice", models.LoginFailure, now-20)
	other.EventName = "CheckMfa"
	other.Detail.EventName = "CheckMfa"
	events = append(events, other)

	for _, ev := range events {
		require.NoError(t, s.Put(ctx, ev))
	}

	t.Run("closed window", func(t *testing.T) {
		got, err := s.QueryByIdentityAndWindow(ctx, "IAMUser-alice", now-3600, now)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"f-edge", "f-1", "f-now"}, ids(got))
	})

	t.Run("put is overwrite by id", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, consoleLogin("f-1", "alice", models.LoginFailure, now-100)))
		got, err := s.QueryByIdentityAndWindow(ctx, "IAMUser-alice", now-3600, now)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("other identity", func(t *testing.T) {
		got, err := s.QueryByIdentityAndWindow(ctx, "IAMUser-bob", now-3600, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"b-1"}, ids(got))
	})

	t.Run("unknown identity", func(t *testing.T) {
		got, err := s.QueryByIdentityAndWindow(ctx, "IAMUser-nobody", now-3600, now)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func ids(events []models.ActivityEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_HidesExpired(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ev := consoleLogin("gone", "alice", models.LoginFailure, now.Unix()-10)
	ev.TTL = now.Unix() - 1
	require.NoError(t, s.Put(ctx, ev))

	got, err := s.QueryByIdentityAndWindow(ctx, "IAMUser-alice", now.Unix()-3600, now.Unix())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().QueryByIdentityAndWindow(ctx, "IAMUser-alice", 0, 1)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), Options{Backend: "cassandra"})
	assert.Error(t, err)
}
