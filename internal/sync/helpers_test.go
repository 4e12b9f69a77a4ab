package sync

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/offlinehq/recbox/internal/recordsdk"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory RemoteAPI. List calls consume the errs queue
// first (nil entries mean "serve the next page"), then serve pages in order.
type fakeRemote struct {
	mu        sync.Mutex
	pages     []*recordsdk.ListRecordsResponse
	errs      []error
	pageIdx   int
	listCalls int

	created   []*recordsdk.CreateRecordRequest
	updated   []*recordsdk.UpdateRecordRequest
	createErr error
	updateErr error
}

func (f *fakeRemote) ListRecords(ctx context.Context, params *recordsdk.ListRecordsParams) (*recordsdk.ListRecordsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	if f.pageIdx >= len(f.pages) {
		return &recordsdk.ListRecordsResponse{}, nil
	}
	page := f.pages[f.pageIdx]
	f.pageIdx++
	return page, nil
}

func (f *fakeRemote) CreateRecord(ctx context.Context, body *recordsdk.CreateRecordRequest) (*recordsdk.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, body)
	return &recordsdk.Record{ID: "srv-" + body.CollectionID, CollectionID: body.CollectionID, Fields: body.Fields, LastModified: time.Now()}, nil
}

func (f *fakeRemote) UpdateRecord(ctx context.Context, body *recordsdk.UpdateRecordRequest) (*recordsdk.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, body)
	return &recordsdk.Record{ID: body.RecordID, CollectionID: body.CollectionID, Fields: body.Fields, LastModified: time.Now()}, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(":memory:")
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	return store
}

// testLimiter admits requests fast enough that tests never wait on it.
func testLimiter() *RateLimiter {
	return NewRateLimiter(10000)
}

func localRecord(id, collectionID string, mod time.Time, dirty bool) *Record {
	return &Record{
		ID:           id,
		CollectionID: collectionID,
		Fields:       map[string]any{"title": "local " + id},
		LastModified: mod,
		Dirty:        dirty,
	}
}

func remoteRecord(id, collectionID string, mod time.Time) *Record {
	return &Record{
		ID:           id,
		CollectionID: collectionID,
		Fields:       map[string]any{"title": "remote " + id},
		LastModified: mod,
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func wireRecord(id, collectionID string, mod time.Time) *recordsdk.Record {
	return &recordsdk.Record{
		ID:           id,
		CollectionID: collectionID,
		Fields:       map[string]any{"title": "remote " + id},
		LastModified: mod,
	}
}
