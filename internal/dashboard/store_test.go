package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "store.json")),
		"redis":  NewRedisStore(rdb),
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.Get(ctx, infra.StoreKeyHealthScore)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, infra.StoreKeyHealthScore, "72"))
			v, ok, err := s.Get(ctx, infra.StoreKeyHealthScore)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "72", v)

			require.NoError(t, s.Delete(ctx, infra.StoreKeyHealthScore))
			_, ok, err = s.Get(ctx, infra.StoreKeyHealthScore)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Delete(ctx, "missing"))
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	require.NoError(t, NewFileStore(path).Set(ctx, infra.StoreKeyProfilePic, "https://x/me.jpg"))

	v, ok, err := NewFileStore(path).Get(ctx, infra.StoreKeyProfilePic)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://x/me.jpg", v)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFileStore(path).Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestRedisStoreUsesNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, NewRedisStore(rdb).Set(context.Background(), infra.StoreKeyPolicies, "[]"))
	v, err := mr.Get(infra.GetStoreKey(infra.StoreKeyPolicies))
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
