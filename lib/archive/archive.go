// Package archive defines the document archive port (spec §6.3): a
// content-addressed store for the raw envelopes and extracted documents the
// BiPRO transfer pipeline produces. Deduplication is by content hash, so
// uploading a byte-identical file twice is idempotent.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

// BoxType groups documents by origin within the archive.
type BoxType string

const (
	BoxShipmentDocument BoxType = "shipment_document"
	BoxRawEnvelope      BoxType = "raw_envelope"
	BoxCarrierSheet     BoxType = "carrier_sheet"
)

// Document is a stored file plus its archive metadata.
type Document struct {
	ID          string
	Filename    string
	ContentHash string
	Size        int64
	BoxType     BoxType
	SourceType  string
	UploadedAt  time.Time
	Archived    bool
}

// BoxStats summarizes document counts and bytes per box.
type BoxStats struct {
	BoxType BoxType
	Count   int
	Bytes   int64
}

// Store is the archive port. Implementations must dedupe by content hash:
// Upload of bytes already present returns the existing Document.
type Store interface {
	Upload(ctx context.Context, filename, sourceType string, box BoxType, content []byte) (Document, error)
	Download(ctx context.Context, docID string) ([]byte, Document, error)
	List(ctx context.Context, box BoxType, archivedOnly *bool) ([]Document, error)
	Stats(ctx context.Context) ([]BoxStats, error)
}

// MemStore is an in-memory reference Store; its contents last only as long
// as the process. This package provides no durable Store.
type MemStore struct {
	mu       sync.Mutex
	byHash   map[string]Document
	blobs    map[string][]byte
	idToHash map[string]string
}

// NewMemStore returns an empty in-memory archive.
func NewMemStore() *MemStore {
	return &MemStore{
		byHash:   make(map[string]Document),
		blobs:    make(map[string][]byte),
		idToHash: make(map[string]string),
	}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (m *MemStore) Upload(ctx context.Context, filename, sourceType string, box BoxType, content []byte) (Document, error) {
	hash := contentHash(content)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byHash[hash]; ok {
		return existing, nil
	}

	doc := Document{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentHash: hash,
		Size:        int64(len(content)),
		BoxType:     box,
		SourceType:  sourceType,
		UploadedAt:  time.Now().UTC(),
	}
	m.byHash[hash] = doc
	m.blobs[hash] = content
	m.idToHash[doc.ID] = hash
	return doc, nil
}

func (m *MemStore) Download(ctx context.Context, docID string) ([]byte, Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.idToHash[docID]
	if !ok {
		return nil, Document{}, trace.NotFound("document %s not found in archive", docID)
	}
	return m.blobs[hash], m.byHash[hash], nil
}

func (m *MemStore) List(ctx context.Context, box BoxType, archivedOnly *bool) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Document
	for _, doc := range m.byHash {
		if box != "" && doc.BoxType != box {
			continue
		}
		if archivedOnly != nil && doc.Archived != *archivedOnly {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (m *MemStore) Stats(ctx context.Context) ([]BoxStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := make(map[BoxType]*BoxStats)
	for _, doc := range m.byHash {
		s, ok := totals[doc.BoxType]
		if !ok {
			s = &BoxStats{BoxType: doc.BoxType}
			totals[doc.BoxType] = s
		}
		s.Count++
		s.Bytes += doc.Size
	}
	out := make([]BoxStats, 0, len(totals))
	for _, s := range totals {
		out = append(out, *s)
	}
	return out, nil
}

// Archive marks a document archived in place. It is not part of the Store
// interface, and the orchestrator does not call it.
func (m *MemStore) Archive(docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.idToHash[docID]
	if !ok {
		return trace.NotFound("document %s not found in archive", docID)
	}
	doc := m.byHash[hash]
	doc.Archived = true
	m.byHash[hash] = doc
	return nil
}
