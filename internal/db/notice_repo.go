package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"noticebox/internal/types"
)

// defaultListLimit applies when a filter does not set an explicit limit.
const defaultListLimit = 20

// maxListLimit caps the page size regardless of the caller's request.
const maxListLimit = 100

// NoticeRepository provides data access for the notices table.
type NoticeRepository struct {
	db DBTX
}

// NewNoticeRepository creates a NoticeRepository backed by the given database
// connection (pool or transaction).
func NewNoticeRepository(db DBTX) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// CreateBatch bulk-inserts the given notices in a single round trip using a
// pgx batch. Callers must set ID, UserID, Subject, Body, and CreatedAt on
// each notice before calling. An empty slice is a no-op: no database call is
// issued. Atomicity is whatever the batch primitive provides; the dispatch
// layer makes no stronger promise.
func (r *NoticeRepository) CreateBatch(ctx context.Context, notices []*types.Notice) error {
	if len(notices) == 0 {
		return nil
	}

	for _, n := range notices {
		if err := n.Validate(); err != nil {
			return err
		}
	}

	batch := &pgx.Batch{}
	for _, n := range notices {
		batch.Queue(
			`INSERT INTO notices (id, user_id, subject, body, created_at, read_at)
			 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), $6)`,
			n.ID,
			n.UserID,
			n.Subject,
			n.Body,
			nilIfZeroTime(n.CreatedAt),
			n.ReadAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range notices {
		if _, err := results.Exec(); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to bulk insert notices", err)
		}
	}

	return nil
}

// ListByUser retrieves a user's notices, newest first, with cursor-based
// pagination using the limit+1 strategy. The cursor is the created_at of the
// last item of the previous page, formatted as RFC3339Nano.
func (r *NoticeRepository) ListByUser(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT id, user_id, subject, body, created_at, read_at
	          FROM notices
	          WHERE user_id = $1`
	args := []any{filter.UserID}

	if filter.UnreadOnly {
		query += ` AND read_at IS NULL`
	}

	if filter.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, filter.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationInvalidCursor,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		args = append(args, cursorTime)
		query += ` AND created_at < $2`
	}

	args = append(args, limit+1)
	if filter.Cursor != "" {
		query += ` ORDER BY created_at DESC LIMIT $3`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2`
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list notices", err)
	}
	defer rows.Close()

	var results []*types.Notice
	for rows.Next() {
		n, scanErr := scanNotice(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notice row", scanErr)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating notice rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// GetByUser retrieves a single notice scoped to its owning user. Scoping by
// user is part of the ownership invariant: a notice is never visible outside
// its owner's collection.
func (r *NoticeRepository) GetByUser(ctx context.Context, userID, noticeID string) (*types.Notice, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, subject, body, created_at, read_at
		 FROM notices
		 WHERE id = $1 AND user_id = $2`,
		noticeID, userID,
	)

	n, err := scanNoticeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotice, "notice not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notice", err)
	}
	return n, nil
}

// MarkRead sets read_at to the current database time, only if the notice is
// currently unread. Marking an already-read notice is a no-op that returns
// the stored row unchanged, so the read timestamp records the first read.
func (r *NoticeRepository) MarkRead(ctx context.Context, userID, noticeID string) (*types.Notice, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE notices SET read_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND read_at IS NULL
		 RETURNING id, user_id, subject, body, created_at, read_at`,
		noticeID, userID,
	)

	n, err := scanNoticeRow(row)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to mark notice read", err)
	}

	// Zero rows updated: either the notice is already read or it does not
	// exist. GetByUser distinguishes the two.
	return r.GetByUser(ctx, userID, noticeID)
}

// CountUnread returns the number of unread notices for the given user.
// Leverages the idx_notices_user_unread partial index.
func (r *NoticeRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notices WHERE user_id = $1 AND read_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unread notices", err)
	}
	return count, nil
}

// ListReadBefore retrieves notices that were read before the cutoff time,
// oldest first. Used by the retention archiver to export rows before they
// are deleted.
func (r *NoticeRepository) ListReadBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Notice, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, subject, body, created_at, read_at
		 FROM notices
		 WHERE read_at IS NOT NULL AND read_at < $1
		 ORDER BY read_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list read notices", err)
	}
	defer rows.Close()

	var results []*types.Notice
	for rows.Next() {
		n, scanErr := scanNotice(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notice row", scanErr)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notice rows", err)
	}

	return results, nil
}

// DeleteReadBefore hard-deletes notices that were read before the cutoff
// time. Returns the count of deleted records. Deletion is a retention
// concern; the dispatch pipeline itself never deletes notices.
func (r *NoticeRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notices WHERE read_at IS NOT NULL AND read_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete read notices", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByIDs hard-deletes the given notices. Used by the archiver to
// remove exactly the rows it has already written out, one batch at a time.
func (r *NoticeRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM notices WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete notices by id", err)
	}
	return tag.RowsAffected(), nil
}

// scanNotice scans a notices row from a pgx.Rows result set.
func scanNotice(rows pgx.Rows) (*types.Notice, error) {
	var n types.Notice
	if err := rows.Scan(&n.ID, &n.UserID, &n.Subject, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// scanNoticeRow scans a notices row from a single-row query.
func scanNoticeRow(row pgx.Row) (*types.Notice, error) {
	var n types.Notice
	if err := row.Scan(&n.ID, &n.UserID, &n.Subject, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// nilIfZeroTime converts a zero time.Time to nil so the database DEFAULT
// expression applies.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
