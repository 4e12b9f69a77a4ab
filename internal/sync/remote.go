package sync

import (
	"context"

	"github.com/offlinehq/recbox/internal/recordsdk"
)

// RemoteAPI is the slice of the record service the engine depends on.
// *recordsdk.RecordsAPI satisfies it; tests substitute fakes.
type RemoteAPI interface {
	ListRecords(ctx context.Context, params *recordsdk.ListRecordsParams) (*recordsdk.ListRecordsResponse, error)
	CreateRecord(ctx context.Context, body *recordsdk.CreateRecordRequest) (*recordsdk.Record, error)
	UpdateRecord(ctx context.Context, body *recordsdk.UpdateRecordRequest) (*recordsdk.Record, error)
}

var _ RemoteAPI = (*recordsdk.RecordsAPI)(nil)
