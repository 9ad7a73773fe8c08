package querycache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobertis/querycache"
)

// recordingNotifier captures messages the way a toast surface would.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) lastError() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errors) == 0 {
		return ""
	}
	return n.errors[len(n.errors)-1]
}

func TestMutation_SuccessInvalidatesDeclaredKeys(t *testing.T) {
	c := newTestCache(querycache.Config{})
	defer c.Close()
	ctx := context.Background()

	// The server-side contact list shrinks once the delete lands.
	var deleted atomic.Bool
	fetcher := func(ctx context.Context, key querycache.Key) (interface{}, error) {
		if deleted.Load() {
			time.Sleep(20 * time.Millisecond) // keep the re-fetch observable
			return []string{"alice", "carol"}, nil
		}
		return []string{"alice", "bob", "carol"}, nil
	}

	listKey := querycache.Key{"contacts", "list", 1, 25}
	sub, err := c.Subscribe(ctx, listKey, fetcher, querycache.SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return sub.Snapshot().IsSuccess() }, waitFor, tick)

	var gotResp interface{}
	mut, err := c.NewMutation(
		func(ctx context.Context, args interface{}) (interface{}, error) {
			deleted.Store(true)
			return "deleted " + args.(string), nil
		},
		querycache.MutationOptions{
			Invalidates: []querycache.Key{{"contacts", "list"}},
			OnSuccess:   func(resp interface{}) { gotResp = resp },
		},
	)
	require.NoError(t, err)

	resp, err := mut.Mutate(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "deleted bob", resp)
	assert.Equal(t, "deleted bob", gotResp)

	// The list reports loading transiently, then excludes the deleted contact.
	assert.True(t, sub.Snapshot().IsLoading() || sub.Snapshot().Fetching)
	require.Eventually(t, func() bool {
		snap := sub.Snapshot()
		data, ok := snap.Data.([]string)
		return snap.IsSuccess() && ok && len(data) == 2
	}, waitFor, tick)
}

func TestMutation_ErrorPreservesCacheAndNotifies(t *testing.T) {
	c := newTestCache(querycache.Config{})
	defer c.Close()
	ctx := context.Background()

	var calls int32
	fetcher := func(ctx context.Context, key querycache.Key) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "v1", nil
	}
	key := querycache.Key{"contacts", "list", 1}
	sub, err := c.Subscribe(ctx, key, fetcher, querycache.SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return sub.Snapshot().IsSuccess() }, waitFor, tick)

	toasts := &recordingNotifier{}
	var gotErr error
	mut, err := c.NewMutation(
		func(ctx context.Context, args interface{}) (interface{}, error) {
			return nil, errors.New("contact is referenced by an open deal")
		},
		querycache.MutationOptions{
			Invalidates: []querycache.Key{{"contacts", "list"}},
			OnError:     func(err error) { gotErr = err },
			Notifier:    toasts,
		},
	)
	require.NoError(t, err)

	_, err = mut.Mutate(ctx, "bob")
	require.Error(t, err)
	require.Error(t, gotErr)
	assert.Equal(t, "contact is referenced by an open deal", toasts.lastError())
	assert.NotEmpty(t, toasts.lastError(), "failure must always carry a human-readable message")

	// The related entry is left untouched: no invalidation, no re-fetch.
	time.Sleep(50 * time.Millisecond)
	snap := sub.Snapshot()
	assert.Equal(t, "v1", snap.Data)
	assert.False(t, snap.Stale)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMutation_SuccessMessageReachesNotifier(t *testing.T) {
	c := newTestCache(querycache.Config{})
	defer c.Close()

	toasts := &recordingNotifier{}
	mut, err := c.NewMutation(
		func(ctx context.Context, args interface{}) (interface{}, error) { return nil, nil },
		querycache.MutationOptions{Notifier: toasts, SuccessMessage: "Contact saved"},
	)
	require.NoError(t, err)

	_, err = mut.Mutate(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, toasts.successes, 1)
	assert.Equal(t, "Contact saved", toasts.successes[0])
}

func TestMutation_RejectsConcurrentCalls(t *testing.T) {
	c := newTestCache(querycache.Config{})
	defer c.Close()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	mut, err := c.NewMutation(
		func(ctx context.Context, args interface{}) (interface{}, error) {
			close(started)
			<-release
			return "done", nil
		},
		querycache.MutationOptions{},
	)
	require.NoError(t, err)

	var firstErr error
	done := make(chan struct{})
	go func() {
		_, firstErr = mut.Mutate(ctx, nil)
		close(done)
	}()

	<-started
	assert.True(t, mut.Pending())
	_, err = mut.Mutate(ctx, nil)
	require.ErrorIs(t, err, querycache.ErrMutationPending)

	close(release)
	<-done
	require.NoError(t, firstErr)
	assert.False(t, mut.Pending())
}

func TestNewMutation_Validation(t *testing.T) {
	c := newTestCache(querycache.Config{})
	defer c.Close()

	_, err := c.NewMutation(nil, querycache.MutationOptions{})
	require.ErrorIs(t, err, querycache.ErrNilMutation)

	mut, err := c.NewMutation(
		func(ctx context.Context, args interface{}) (interface{}, error) { return nil, nil },
		querycache.MutationOptions{},
	)
	require.NoError(t, err)
	_, err = mut.Mutate(nil, nil) //nolint:staticcheck
	require.ErrorIs(t, err, querycache.ErrNilContext)
}
