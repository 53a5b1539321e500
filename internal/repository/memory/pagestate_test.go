package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestRepo(ttl time.Duration) (*PageStateRepository, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	repo := NewPageStateRepository(ttl)
	repo.now = clock.now
	return repo, clock
}

func TestPageStateRepository_SaveGetDelete(t *testing.T) {
	repo, _ := newTestRepo(time.Hour)
	ctx := context.Background()

	_, err := repo.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	state := domain.NewPageState("sess-1", "mount-1", "16", time.Now())
	require.NoError(t, repo.Save(ctx, state))

	got, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	require.NoError(t, repo.Delete(ctx, "sess-1"))
	require.NoError(t, repo.Delete(ctx, "sess-1"))
	_, err = repo.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPageStateRepository_SaveIfVersion(t *testing.T) {
	repo, _ := newTestRepo(time.Hour)
	ctx := context.Background()

	state := domain.NewPageState("sess-1", "mount-1", "16", time.Now())
	require.NoError(t, repo.Save(ctx, state))

	next, changed := domain.Increment(state, 0, time.Now())
	require.True(t, changed)
	require.NoError(t, repo.SaveIfVersion(ctx, next, state.Version))

	// A writer still holding the old snapshot loses.
	stale, _ := domain.Increment(state, 0, time.Now())
	err := repo.SaveIfVersion(ctx, stale, state.Version)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, next.Version, got.Version)
}

func TestPageStateRepository_SaveIfVersion_MissingSession(t *testing.T) {
	repo, _ := newTestRepo(time.Hour)

	err := repo.SaveIfVersion(context.Background(), domain.NewPageState("gone", "m", "1", time.Now()), 0)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPageStateRepository_Expiry(t *testing.T) {
	repo, clock := newTestRepo(time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.NewPageState("a", "m", "1", clock.t)))
	clock.t = clock.t.Add(30 * time.Second)
	require.NoError(t, repo.Save(ctx, domain.NewPageState("b", "m", "1", clock.t)))

	clock.t = clock.t.Add(31 * time.Second)
	_, err := repo.Get(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.Get(ctx, "b")
	assert.NoError(t, err)

	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, 1, repo.sweep())
	assert.Equal(t, 0, repo.Len())
}

func TestPageStateRepository_ConcurrentCAS(t *testing.T) {
	repo, _ := newTestRepo(time.Hour)
	ctx := context.Background()

	base := domain.NewPageState("sess", "m", "1", time.Now())
	require.NoError(t, repo.Save(ctx, base))

	const writers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _ := domain.Increment(base, 0, time.Now())
			if repo.SaveIfVersion(ctx, next, base.Version) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestPageStateRepository_RunJanitorStops(t *testing.T) {
	repo, _ := newTestRepo(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		repo.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestPageStateRepository_SaveIfVersion_OtherMount(t *testing.T) {
	repo, _ := newTestRepo(time.Hour)
	ctx := context.Background()

	now := time.Now()
	oldMount, err := domain.FetchStarted(domain.NewPageState("sess", "mount-1", "16", now), now)
	require.NoError(t, err)
	newMount, err := domain.FetchStarted(domain.NewPageState("sess", "mount-2", "16", now), now)
	require.NoError(t, err)
	require.Equal(t, oldMount.Version, newMount.Version)

	require.NoError(t, repo.Save(ctx, newMount))

	settled, err := domain.FetchFailed(oldMount, domain.FailureNotFound, now)
	require.NoError(t, err)
	err = repo.SaveIfVersion(ctx, settled, oldMount.Version)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := repo.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "mount-2", got.MountID)
	assert.Equal(t, domain.StatusLoading, got.Status)
}
