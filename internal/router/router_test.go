package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docpipe/internal/embcache"
	"docpipe/internal/router"
)

var errTransient = errors.New("connection refused")

func transientOnly(err error) bool { return errors.Is(err, errTransient) }

type MockCache struct{ mock.Mock }

func (m *MockCache) GetOrCompute(ctx context.Context, items []embcache.Item) ([][]float32, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockCache) MarkUploaded(keys []string) {
	m.Called(keys)
}

type MockRemote struct{ mock.Mock }

func (m *MockRemote) UploadBatch(ctx context.Context, routeKey string, entries []embcache.Entry) error {
	args := m.Called(ctx, routeKey, entries)
	return args.Error(0)
}

func fastPolicy() router.Policy {
	return router.Policy{Attempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2.0, MaxElapsed: time.Second}
}

func testItems() []embcache.Item {
	return []embcache.Item{
		{Content: "alpha", Metadata: embcache.Metadata{URL: "u", Hash: "h1", DocSet: "jdk"}},
		{Content: "beta", Metadata: embcache.Metadata{URL: "u", Hash: "h2", DocSet: "jdk", ChunkIndex: 1}},
	}
}

func testVectors() [][]float32 {
	return [][]float32{{1, 0}, {0, 1}}
}

func TestStore_LocalOnlyCacheIsPrimary(t *testing.T) {
	cache := new(MockCache)
	cache.On("GetOrCompute", mock.Anything, mock.Anything).Return(testVectors(), nil).Once()

	r := router.New(cache, nil, true, fastPolicy(), transientOnly)
	res, err := r.Store(context.Background(), "jdk", testItems())
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.True(t, res.UsedPrimary)
	cache.AssertExpectations(t)
}

func TestStore_UploadMarksEntriesUploaded(t *testing.T) {
	items := testItems()
	cache := new(MockCache)
	remote := new(MockRemote)
	cache.On("GetOrCompute", mock.Anything, items).Return(testVectors(), nil).Once()
	remote.On("UploadBatch", mock.Anything, "jdk", mock.MatchedBy(func(entries []embcache.Entry) bool {
		return len(entries) == 2 && entries[0].Content == "alpha" && entries[1].Metadata.Hash == "h2"
	})).Return(nil).Once()
	cache.On("MarkUploaded", mock.MatchedBy(func(keys []string) bool {
		return len(keys) == 2 &&
			keys[0] == embcache.KeyFor(items[0].Content, items[0].Metadata) &&
			keys[1] == embcache.KeyFor(items[1].Content, items[1].Metadata)
	})).Once()

	r := router.New(cache, remote, false, fastPolicy(), transientOnly)
	res, err := r.Store(context.Background(), "jdk", items)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.True(t, res.UsedPrimary)
	cache.AssertExpectations(t)
	remote.AssertExpectations(t)
}

func TestStore_TransientFailureRetriesThenSucceeds(t *testing.T) {
	cache := new(MockCache)
	remote := new(MockRemote)
	cache.On("GetOrCompute", mock.Anything, mock.Anything).Return(testVectors(), nil).Once()
	remote.On("UploadBatch", mock.Anything, "jdk", mock.Anything).Return(errTransient).Twice()
	remote.On("UploadBatch", mock.Anything, "jdk", mock.Anything).Return(nil).Once()
	cache.On("MarkUploaded", mock.Anything).Once()

	r := router.New(cache, remote, false, fastPolicy(), transientOnly)
	res, err := r.Store(context.Background(), "jdk", testItems())
	require.NoError(t, err)
	assert.True(t, res.UsedPrimary)
	remote.AssertExpectations(t)
}

func TestStore_ExhaustedRetriesFallBackToCache(t *testing.T) {
	cache := new(MockCache)
	remote := new(MockRemote)
	cache.On("GetOrCompute", mock.Anything, mock.Anything).Return(testVectors(), nil).Once()
	remote.On("UploadBatch", mock.Anything, "jdk", mock.Anything).Return(errTransient).Times(3)

	r := router.New(cache, remote, false, fastPolicy(), transientOnly)
	res, err := r.Store(context.Background(), "jdk", testItems())
	require.NoError(t, err, "fallback is a success, not an error")
	assert.True(t, res.Succeeded)
	assert.False(t, res.UsedPrimary)
	// Nothing is marked uploaded on fallback.
	cache.AssertNotCalled(t, "MarkUploaded", mock.Anything)
	remote.AssertExpectations(t)
}

func TestStore_PermanentFailurePropagates(t *testing.T) {
	permanent := errors.New("class validation failed")
	cache := new(MockCache)
	remote := new(MockRemote)
	cache.On("GetOrCompute", mock.Anything, mock.Anything).Return(testVectors(), nil).Once()
	remote.On("UploadBatch", mock.Anything, "jdk", mock.Anything).Return(permanent).Once()

	r := router.New(cache, remote, false, fastPolicy(), transientOnly)
	res, err := r.Store(context.Background(), "jdk", testItems())
	require.ErrorIs(t, err, permanent)
	assert.False(t, res.Succeeded)
	remote.AssertNumberOfCalls(t, "UploadBatch", 1)
	cache.AssertNotCalled(t, "MarkUploaded", mock.Anything)
}

func TestStore_EmbeddingFailurePropagates(t *testing.T) {
	cache := new(MockCache)
	cache.On("GetOrCompute", mock.Anything, mock.Anything).
		Return(nil, embcache.ErrEmbeddingCountMismatch).Once()

	r := router.New(cache, new(MockRemote), false, fastPolicy(), transientOnly)
	_, err := r.Store(context.Background(), "jdk", testItems())
	assert.ErrorIs(t, err, embcache.ErrEmbeddingCountMismatch)
}

func TestStore_EmptyInputSucceedsWithoutWork(t *testing.T) {
	cache := new(MockCache)
	r := router.New(cache, nil, false, fastPolicy(), transientOnly)
	res, err := r.Store(context.Background(), "jdk", nil)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	cache.AssertNotCalled(t, "GetOrCompute", mock.Anything, mock.Anything)
}

func TestPolicy_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(error) bool { return false }, func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := router.Policy{Attempts: 5, InitialBackoff: 10 * time.Millisecond, Multiplier: 2.0}
	err := policy.Do(ctx, func(error) bool { return true }, func() error {
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}
