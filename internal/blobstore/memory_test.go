package blobstore_test

import (
	"context"
	"testing"

	"github.com/kiranshivaraju/retrainer/internal/blobstore"
	"github.com/kiranshivaraju/retrainer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBucket_PutGet(t *testing.T) {
	ctx := context.Background()
	b := blobstore.NewMemoryBucket("retrain")

	require.NoError(t, b.Put(ctx, "train.csv", []byte("a,b\n1,2")))

	data, err := b.Get(ctx, "train.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", string(data))

	ok, err := b.Exists(ctx, "train.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryBucket_GetMissing(t *testing.T) {
	b := blobstore.NewMemoryBucket("retrain")

	_, err := b.Get(context.Background(), "nope.csv")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	ok, err := b.Exists(context.Background(), "nope.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBucket_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	b := blobstore.NewMemoryBucket("retrain")
	for _, k := range []string{"retrainer-1.csv", "retrainer-1.ilearner", "other.csv"} {
		require.NoError(t, b.Put(ctx, k, []byte("x")))
	}

	keys, err := b.List(ctx, "retrainer-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"retrainer-1.csv", "retrainer-1.ilearner"}, keys)
}

func TestMemoryBucket_Delete(t *testing.T) {
	ctx := context.Background()
	b := blobstore.NewMemoryBucket("retrain")
	require.NoError(t, b.Put(ctx, "k", []byte("v")))

	require.NoError(t, b.Delete(ctx, "k"))
	assert.ErrorIs(t, b.Delete(ctx, "k"), blobstore.ErrNotFound)
}

func TestMemoryBucket_CopiesData(t *testing.T) {
	ctx := context.Background()
	b := blobstore.NewMemoryBucket("retrain")
	data := []byte("abc")
	require.NoError(t, b.Put(ctx, "k", data))
	data[0] = 'z'

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryBucket_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := blobstore.NewMemoryBucket("retrain")
	assert.ErrorIs(t, b.Put(ctx, "k", nil), context.Canceled)
}

func TestNew_Memory(t *testing.T) {
	b, err := blobstore.New(context.Background(), config.StorageConfig{Backend: "memory", Container: "retrain"})
	require.NoError(t, err)
	assert.Equal(t, "retrain", b.Name())
}

func TestNew_Azure(t *testing.T) {
	b, err := blobstore.New(context.Background(), config.StorageConfig{
		Backend:   "azure",
		Account:   "mlstorage",
		Key:       "c3RvcmFnZS1rZXk=",
		Container: "retrain",
	})
	require.NoError(t, err)
	assert.Equal(t, "retrain", b.Name())
}

func TestNew_AzureRejectsBadKey(t *testing.T) {
	_, err := blobstore.New(context.Background(), config.StorageConfig{
		Backend:   "azure",
		Account:   "mlstorage",
		Key:       "not base64!",
		Container: "retrain",
	})
	assert.Error(t, err)
}

func TestNew_Unsupported(t *testing.T) {
	_, err := blobstore.New(context.Background(), config.StorageConfig{Backend: "gcs"})
	assert.Error(t, err)
}
