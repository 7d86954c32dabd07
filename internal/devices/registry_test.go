package devices

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/atinyakov/smsglue/internal/codec"
	"github.com/atinyakov/smsglue/internal/models"
	"github.com/atinyakov/smsglue/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type fakeSink struct {
	mu     sync.Mutex
	calls  []models.DeviceBinding
	failOn map[string]bool
}

func (f *fakeSink) Notify(_ context.Context, deviceToken, appID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, models.DeviceBinding{DeviceToken: deviceToken, AppID: appID})
	if f.failOn[deviceToken] {
		return errors.New("push rejected")
	}
	return nil
}

func newRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	s := store.NewFileStore(t.TempDir())
	key, err := s.Initialize(context.Background())
	require.NoError(t, err)
	c, err := codec.New(key)
	require.NoError(t, err)
	return NewRegistry(s, c), s
}

func TestUpsert_Dedupe(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	steps := []models.DeviceBinding{
		{DeviceToken: "t1", AppID: "a1"},
		{DeviceToken: "t2", AppID: "a2"},
		{DeviceToken: "t1", AppID: "a9"},
		{DeviceToken: "t3", AppID: "a3"},
		{DeviceToken: "t2", AppID: "a8"},
	}
	for _, b := range steps {
		require.NoError(t, r.Upsert(ctx, "acc", b.DeviceToken, b.AppID))
	}

	assert.Equal(t, []models.DeviceBinding{
		{DeviceToken: "t1", AppID: "a1"},
		{DeviceToken: "t2", AppID: "a2"},
		{DeviceToken: "t3", AppID: "a3"},
	}, r.List(ctx, "acc"))
}

func TestUpsert_EmptyIsNormalizingNoop(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, "acc", "", ""))
	_, ok := s.Load(ctx, store.CategoryDevices, "acc")
	assert.True(t, ok)
	assert.Empty(t, r.List(ctx, "acc"))

	require.NoError(t, r.Upsert(ctx, "acc", "t1", "a1"))
	require.NoError(t, r.Upsert(ctx, "acc", "t2", ""))
	require.NoError(t, r.Upsert(ctx, "acc", "", "a2"))
	assert.Equal(t, []models.DeviceBinding{{DeviceToken: "t1", AppID: "a1"}}, r.List(ctx, "acc"))
}

func TestUpsert_CorruptListTreatedAsEmpty(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, store.CategoryDevices, "acc", "not-a-ciphertext"))

	require.NoError(t, r.Upsert(ctx, "acc", "t1", "a1"))
	assert.Equal(t, []models.DeviceBinding{{DeviceToken: "t1", AppID: "a1"}}, r.List(ctx, "acc"))
}

func TestUpsert_AccountsIsolated(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, "a", "t1", "x"))
	require.NoError(t, r.Upsert(ctx, "b", "t1", "y"))

	assert.Equal(t, "x", r.List(ctx, "a")[0].AppID)
	assert.Equal(t, "y", r.List(ctx, "b")[0].AppID)
}

func TestNotifyAll(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	for _, tok := range []string{"t1", "t2", "t3"} {
		require.NoError(t, r.Upsert(ctx, "acc", tok, "app-"+tok))
	}

	sink := &fakeSink{failOn: map[string]bool{"t2": true}}
	delivered, err := r.NotifyAll(ctx, "acc", sink)

	assert.Equal(t, 2, delivered)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "app-t2")

	got := make([]string, 0, len(sink.calls))
	for _, c := range sink.calls {
		assert.Equal(t, "app-"+c.DeviceToken, c.AppID)
		got = append(got, c.DeviceToken)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"t1", "t2", "t3"}, got)

	// Failed bindings are kept.
	assert.Len(t, r.List(ctx, "acc"), 3)
}

func TestNotifyAll_NoDevices(t *testing.T) {
	r, _ := newRegistry(t)
	sink := &fakeSink{}

	delivered, err := r.NotifyAll(context.Background(), "nobody", sink)
	assert.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Empty(t, sink.calls)
}
