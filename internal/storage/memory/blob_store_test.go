package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "alpha/report.csv", "text/csv", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://alpha/report.csv", uri)

	payload[0] = 'C'
	obj, ok := store.Get("alpha/report.csv")
	require.True(t, ok)
	require.Equal(t, "content", string(obj.Data))
	require.Equal(t, "text/csv", obj.ContentType)
	require.Equal(t, []string{"alpha/report.csv"}, store.Keys())
}
