package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/offlinehq/recbox/internal/db"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT NOT NULL,
    collection_id TEXT NOT NULL,
    fields TEXT NOT NULL, -- JSON
    last_modified TEXT NOT NULL, -- RFC3339
    dirty INTEGER NOT NULL DEFAULT 0,
    archived INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (id, collection_id)
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection_id);
CREATE INDEX IF NOT EXISTS idx_records_dirty ON records(collection_id, dirty);

CREATE TABLE IF NOT EXISTS sync_checkpoints (
    collection_id TEXT PRIMARY KEY,
    last_sync_at TEXT NOT NULL -- RFC3339
);

CREATE TABLE IF NOT EXISTS offline_queue (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    collection_id TEXT NOT NULL,
    change_type TEXT NOT NULL,
    payload TEXT NOT NULL, -- JSON
    queued_at TEXT NOT NULL -- RFC3339
);
CREATE INDEX IF NOT EXISTS idx_queue_order ON offline_queue(queued_at);

CREATE TABLE IF NOT EXISTS sync_results (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    created INTEGER NOT NULL,
    updated INTEGER NOT NULL,
    deleted INTEGER NOT NULL,
    conflict_count INTEGER NOT NULL,
    error_count INTEGER NOT NULL,
    first_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_results_collection ON sync_results(collection_id, seq);
`

type dbRecord struct {
	ID           string `db:"id"`
	CollectionID string `db:"collection_id"`
	Fields       string `db:"fields"`
	LastModified string `db:"last_modified"`
	Dirty        bool   `db:"dirty"`
	Archived     bool   `db:"archived"`
}

type dbOfflineChange struct {
	ID           string `db:"id"`
	ItemID       string `db:"item_id"`
	CollectionID string `db:"collection_id"`
	ChangeType   string `db:"change_type"`
	Payload      string `db:"payload"`
	QueuedAt     string `db:"queued_at"`
}

type dbSyncResult struct {
	Seq           int64  `db:"seq"`
	CollectionID  string `db:"collection_id"`
	StartedAt     string `db:"started_at"`
	FinishedAt    string `db:"finished_at"`
	Created       int    `db:"created"`
	Updated       int    `db:"updated"`
	Deleted       int    `db:"deleted"`
	ConflictCount int    `db:"conflict_count"`
	ErrorCount    int    `db:"error_count"`
	FirstError    string `db:"first_error"`
}

// Store is the engine-owned local persistent state: the record cache, the
// per-collection sync checkpoints, the offline mutation queue, and the
// bounded sync result history. All of it survives process restart.
type Store struct {
	db     *sqlx.DB
	dbPath string
}

// NewStore creates a Store backed by an SQLite database at dbPath.
// Use ":memory:" for tests.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Open the store and the underlying database.
func (s *Store) Open() error {
	if s.db != nil {
		return fmt.Errorf("store already open")
	}

	database, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	if _, err := database.Exec(storeSchema); err != nil {
		database.Close()
		return fmt.Errorf("initialize store schema: %w", err)
	}

	s.db = database
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return fmt.Errorf("store not open")
	}
	if err := s.db.Close(); err != nil {
		slog.Error("store close failed", "error", err)
		return err
	}
	slog.Debug("store closed")
	return nil
}

// Records returns all cached records of a collection.
func (s *Store) Records(ctx context.Context, collectionID string) ([]*Record, error) {
	var rows []dbRecord
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, collection_id, fields, last_modified, dirty, archived FROM records WHERE collection_id = ?",
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("query records %s: %w", collectionID, err)
	}

	records := make([]*Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			slog.Error("store skipping corrupt record", "id", rows[i].ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetRecord returns one record, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, collectionID, id string) (*Record, error) {
	var row dbRecord
	err := s.db.GetContext(ctx, &row,
		"SELECT id, collection_id, fields, last_modified, dirty, archived FROM records WHERE collection_id = ? AND id = ?",
		collectionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query record %s/%s: %w", collectionID, id, err)
	}
	return row.toRecord()
}

// ApplyBatch persists all mutations of one reconcile run in a single
// transaction. On any failure nothing is committed.
func (s *Store) ApplyBatch(ctx context.Context, collectionID string, batch *ChangeBatch) error {
	if batch.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range batch.Upserts {
		row, err := toDBRecord(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT OR REPLACE INTO records (id, collection_id, fields, last_modified, dirty, archived)
			 VALUES (:id, :collection_id, :fields, :last_modified, :dirty, :archived)`, row)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}

	for _, id := range batch.Deletes {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM records WHERE collection_id = ? AND id = ?", collectionID, id); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	slog.Debug("store batch applied", "collection", collectionID, "upserts", len(batch.Upserts), "deletes", len(batch.Deletes))
	return nil
}

// MarkDirty flags a record as carrying unsynced local edits.
func (s *Store) MarkDirty(ctx context.Context, collectionID, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE records SET dirty = 1 WHERE collection_id = ? AND id = ?", collectionID, id)
	if err != nil {
		return fmt.Errorf("mark dirty %s/%s: %w", collectionID, id, err)
	}
	return nil
}

// ClearDirty removes the unsynced-edits flag after a confirmed replay.
func (s *Store) ClearDirty(ctx context.Context, collectionID, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE records SET dirty = 0 WHERE collection_id = ? AND id = ?", collectionID, id)
	if err != nil {
		return fmt.Errorf("clear dirty %s/%s: %w", collectionID, id, err)
	}
	return nil
}

// Checkpoint returns the last successful sync timestamp for a collection.
// ok is false when the collection was never synced.
func (s *Store) Checkpoint(ctx context.Context, collectionID string) (at time.Time, ok bool, err error) {
	var raw string
	err = s.db.GetContext(ctx, &raw,
		"SELECT last_sync_at FROM sync_checkpoints WHERE collection_id = ?", collectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("query checkpoint %s: %w", collectionID, err)
	}

	at, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %s: %w", collectionID, err)
	}
	return at, true, nil
}

// SetCheckpoint records a successful sync. It is written only after the
// reconcile batch committed, so a crash in between leaves the previous
// checkpoint and the next run is treated as potentially stale.
func (s *Store) SetCheckpoint(ctx context.Context, collectionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_checkpoints (collection_id, last_sync_at) VALUES (?, ?)",
		collectionID, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", collectionID, err)
	}
	return nil
}

// AppendChange persists one queued offline mutation.
func (s *Store) AppendChange(ctx context.Context, change *OfflineChange) error {
	payload, err := json.Marshal(change.Payload)
	if err != nil {
		return fmt.Errorf("encode change payload: %w", err)
	}

	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO offline_queue (id, item_id, collection_id, change_type, payload, queued_at)
		 VALUES (:id, :item_id, :collection_id, :change_type, :payload, :queued_at)`,
		dbOfflineChange{
			ID:           change.ID,
			ItemID:       change.ItemID,
			CollectionID: change.CollectionID,
			ChangeType:   string(change.ChangeType),
			Payload:      string(payload),
			QueuedAt:     change.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("append change %s: %w", change.ID, err)
	}
	return nil
}

// PendingChanges returns queued changes in FIFO (enqueue) order.
func (s *Store) PendingChanges(ctx context.Context) ([]*OfflineChange, error) {
	var rows []dbOfflineChange
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, item_id, collection_id, change_type, payload, queued_at FROM offline_queue ORDER BY queued_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("query offline queue: %w", err)
	}

	changes := make([]*OfflineChange, 0, len(rows))
	for i := range rows {
		change, err := rows[i].toChange()
		if err != nil {
			slog.Error("store skipping corrupt queued change", "id", rows[i].ID, "error", err)
			continue
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// PendingChangeCount returns the number of queued changes.
func (s *Store) PendingChangeCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM offline_queue"); err != nil {
		return 0, fmt.Errorf("count offline queue: %w", err)
	}
	return count, nil
}

// RemoveChange deletes a queued change after a confirmed replay.
func (s *Store) RemoveChange(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM offline_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove change %s: %w", id, err)
	}
	return nil
}

// AppendResult persists a sync result summary and evicts the oldest entries
// beyond keep for that collection.
func (s *Store) AppendResult(ctx context.Context, result *SyncResult, keep int) error {
	firstError := ""
	if len(result.Errors) > 0 {
		firstError = result.Errors[0].Error()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO sync_results (collection_id, started_at, finished_at, created, updated, deleted, conflict_count, error_count, first_error)
		 VALUES (:collection_id, :started_at, :finished_at, :created, :updated, :deleted, :conflict_count, :error_count, :first_error)`,
		dbSyncResult{
			CollectionID:  result.CollectionID,
			StartedAt:     result.StartedAt.UTC().Format(time.RFC3339Nano),
			FinishedAt:    result.FinishedAt.UTC().Format(time.RFC3339Nano),
			Created:       result.Created,
			Updated:       result.Updated,
			Deleted:       result.Deleted,
			ConflictCount: len(result.Conflicts),
			ErrorCount:    len(result.Errors),
			FirstError:    firstError,
		})
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if keep > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM sync_results WHERE collection_id = ? AND seq NOT IN (
			    SELECT seq FROM sync_results WHERE collection_id = ? ORDER BY seq DESC LIMIT ?)`,
			result.CollectionID, result.CollectionID, keep)
		if err != nil {
			return fmt.Errorf("trim results: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result append: %w", err)
	}
	return nil
}

// ResultHistory returns the most recent persisted result summaries for a
// collection, newest first. Only counts survive persistence; errors collapse
// to a single entry carrying the first recorded message.
func (s *Store) ResultHistory(ctx context.Context, collectionID string, limit int) ([]*SyncResult, error) {
	var rows []dbSyncResult
	err := s.db.SelectContext(ctx, &rows,
		"SELECT seq, collection_id, started_at, finished_at, created, updated, deleted, conflict_count, error_count, first_error FROM sync_results WHERE collection_id = ? ORDER BY seq DESC LIMIT ?",
		collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query result history %s: %w", collectionID, err)
	}

	results := make([]*SyncResult, 0, len(rows))
	for i := range rows {
		result, err := rows[i].toResult()
		if err != nil {
			slog.Error("store skipping corrupt result row", "seq", rows[i].Seq, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func toDBRecord(rec *Record) (*dbRecord, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, err
	}
	return &dbRecord{
		ID:           rec.ID,
		CollectionID: rec.CollectionID,
		Fields:       string(fields),
		LastModified: rec.LastModified.UTC().Format(time.RFC3339Nano),
		Dirty:        rec.Dirty,
		Archived:     rec.Archived,
	}, nil
}

func (row *dbRecord) toRecord() (*Record, error) {
	modTime, err := time.Parse(time.RFC3339Nano, row.LastModified)
	if err != nil {
		return nil, fmt.Errorf("parse last_modified: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(row.Fields), &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	return &Record{
		ID:           row.ID,
		CollectionID: row.CollectionID,
		Fields:       fields,
		LastModified: modTime,
		Dirty:        row.Dirty,
		Archived:     row.Archived,
	}, nil
}

func (row *dbOfflineChange) toChange() (*OfflineChange, error) {
	queuedAt, err := time.Parse(time.RFC3339Nano, row.QueuedAt)
	if err != nil {
		return nil, fmt.Errorf("parse queued_at: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	return &OfflineChange{
		ID:           row.ID,
		ItemID:       row.ItemID,
		CollectionID: row.CollectionID,
		ChangeType:   ChangeType(row.ChangeType),
		Timestamp:    queuedAt,
		Payload:      payload,
	}, nil
}

func (row *dbSyncResult) toResult() (*SyncResult, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	finishedAt, err := time.Parse(time.RFC3339Nano, row.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	result := &SyncResult{
		CollectionID: row.CollectionID,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		Created:      row.Created,
		Updated:      row.Updated,
		Deleted:      row.Deleted,
	}
	if row.ErrorCount > 0 {
		result.Errors = []*SyncError{newSyncError("", OpFetch, errors.New(row.FirstError))}
	}
	return result, nil
}
