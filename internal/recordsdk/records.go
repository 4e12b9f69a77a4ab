package recordsdk

import (
	"context"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
)

const (
	v1Records = "/api/v1/records"
	v1Record  = "/api/v1/records/{id}"
)

// RecordsAPI exposes the record endpoints of the content service.
type RecordsAPI struct {
	client *req.Client
}

func newRecordsAPI(client *req.Client) *RecordsAPI {
	return &RecordsAPI{
		client: client,
	}
}

// ListRecords fetches one page of records in a collection. Pass the cursor
// from the previous page to continue; an empty cursor starts from the top.
func (r *RecordsAPI) ListRecords(ctx context.Context, params *ListRecordsParams) (resp *ListRecordsResponse, err error) {
	request := r.client.R().
		SetContext(ctx).
		SetQueryParam("collection_id", params.CollectionID).
		SetSuccessResult(&resp)

	if params.Cursor != "" {
		request.SetQueryParam("cursor", params.Cursor)
	}
	if params.Limit > 0 {
		request.SetQueryParam("limit", strconv.Itoa(params.Limit))
	}
	if params.ModifiedSince != nil {
		request.SetQueryParam("modified_since", params.ModifiedSince.UTC().Format(time.RFC3339Nano))
	}

	res, err := request.Get(v1Records)
	if err := handleAPIError(res, err, "list records"); err != nil {
		return nil, err
	}

	return resp, nil
}

// CreateRecord creates a new record in a collection.
func (r *RecordsAPI) CreateRecord(ctx context.Context, body *CreateRecordRequest) (resp *Record, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		SetSuccessResult(&resp).
		Post(v1Records)

	if err := handleAPIError(res, err, "create record"); err != nil {
		return nil, err
	}

	return resp, nil
}

// UpdateRecord patches a record with a partial field set. Setting Archived
// soft-deletes the record server-side.
func (r *RecordsAPI) UpdateRecord(ctx context.Context, body *UpdateRecordRequest) (resp *Record, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetPathParam("id", body.RecordID).
		SetBody(body).
		SetSuccessResult(&resp).
		Patch(v1Record)

	if err := handleAPIError(res, err, "update record"); err != nil {
		return nil, err
	}

	return resp, nil
}
