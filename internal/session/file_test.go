package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoadReset(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "whatsapp")

	store, err := NewStore(StoreTypeFile, WithDir(dir))
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, []byte(`{"id":"1"}`)))

	// a fresh store over the same directory sees the saved credentials
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	data, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "device.db"), []byte("x"), 0600))
	require.NoError(t, store.Reset(ctx))

	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
	_, err = os.Stat(filepath.Join(dir, "device.db"))
	assert.True(t, os.IsNotExist(err))

	// idempotent
	require.NoError(t, store.Reset(ctx))
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(StoreTypeFile)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore("etcd")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}
