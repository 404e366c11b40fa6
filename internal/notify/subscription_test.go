package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

func newTestRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	ls, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(ls)
}

func testSubscription(id string) *Subscription {
	return &Subscription{
		ID:        id,
		Endpoint:  "https://push.example.com/" + id,
		P256dhKey: "p256dh-" + id,
		AuthKey:   "auth-" + id,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestYAMLRepositoryCreateGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	sub := testSubscription("01")
	require.NoError(t, repo.Create(ctx, sub))

	got, err := repo.Get(ctx, "01")
	require.NoError(t, err)
	assert.Equal(t, sub, got)
}

func TestYAMLRepositoryCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testSubscription("01")))
	err := repo.Create(ctx, testSubscription("01"))
	require.Error(t, err)
	assert.Equal(t, cerr.AlreadyExists, cerr.CodeOf(err))
}

func TestYAMLRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testSubscription("02")))
	require.NoError(t, repo.Create(ctx, testSubscription("01")))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "01", all[0].ID)
	assert.Equal(t, "02", all[1].ID)
}

func TestYAMLRepositoryDeleteByEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testSubscription("01")))
	require.NoError(t, repo.DeleteByEndpoint(ctx, "https://push.example.com/01"))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = repo.DeleteByEndpoint(ctx, "https://push.example.com/01")
	require.Error(t, err)
	assert.Equal(t, cerr.NotFound, cerr.CodeOf(err))
}
