package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStore_UploadIsIdempotentByContentHash(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	d1, err := store.Upload(ctx, "a.pdf", "shipment", BoxShipmentDocument, []byte("same bytes"))
	require.NoError(t, err)

	d2, err := store.Upload(ctx, "b.pdf", "shipment", BoxShipmentDocument, []byte("same bytes"))
	require.NoError(t, err)

	require.Equal(t, d1.ID, d2.ID)
	require.Equal(t, "a.pdf", d2.Filename)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, 1, stats[0].Count)
}

func TestMemStore_DownloadRoundTrips(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	doc, err := store.Upload(ctx, "x.pdf", "shipment", BoxShipmentDocument, []byte("content"))
	require.NoError(t, err)

	data, got, err := store.Download(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("content"), data)
	require.Equal(t, doc.ID, got.ID)
}

func TestMemStore_Download_NotFound(t *testing.T) {
	store := NewMemStore()
	_, _, err := store.Download(context.Background(), "missing")
	require.Error(t, err)
}

func TestMemStore_ListFiltersByBoxAndArchived(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	doc1, _ := store.Upload(ctx, "doc1.pdf", "shipment", BoxShipmentDocument, []byte("one"))
	_, _ = store.Upload(ctx, "env.xml", "shipment", BoxRawEnvelope, []byte("two"))

	require.NoError(t, store.Archive(doc1.ID))

	docs, err := store.List(ctx, BoxShipmentDocument, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	archived := true
	docs, err = store.List(ctx, "", &archived)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, doc1.ID, docs[0].ID)
}

func TestMemStore_Archive_NotFound(t *testing.T) {
	store := NewMemStore()
	require.Error(t, store.Archive("missing"))
}
