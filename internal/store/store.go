// Package store is the sqlx repository for operators, items, comments and
// draft responses. All ownership filtering happens in the workflow layer;
// the store only enforces the structural invariants (unique remote ids,
// one draft per comment, atomic publish).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"replydeck/manager/internal/database"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/platform"
)

// ErrAlreadyPublished is returned by PublishResponse when the draft has
// already been published; the remote id and timestamp are left untouched.
var ErrAlreadyPublished = errors.New("response already published")

// Store wraps the database connection with typed queries.
type Store struct {
	db *database.DB
}

// New creates a repository instance.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// --- operators ---

// CreateOperator inserts a new operator account.
func (s *Store) CreateOperator(ctx context.Context, username, apiKey string) (*models.Operator, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (username, api_key) VALUES (?, ?)`, username, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to insert operator: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.operatorBy(ctx, "id", id)
}

// OperatorByAPIKey resolves an API key to an operator. Returns (nil, nil)
// when the key is unknown.
func (s *Store) OperatorByAPIKey(ctx context.Context, apiKey string) (*models.Operator, error) {
	return s.operatorBy(ctx, "api_key", apiKey)
}

// OperatorByUsername resolves a username to an operator. Returns (nil, nil)
// when absent.
func (s *Store) OperatorByUsername(ctx context.Context, username string) (*models.Operator, error) {
	return s.operatorBy(ctx, "username", username)
}

func (s *Store) operatorBy(ctx context.Context, column string, value any) (*models.Operator, error) {
	var op models.Operator
	query := fmt.Sprintf(`SELECT * FROM operators WHERE %s = ?`, column)
	err := s.db.GetContext(ctx, &op, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("operator lookup failed: %w", err)
	}
	return &op, nil
}

// --- items ---

// UpsertItem inserts a remote item if its (platform, remote_id) pair is
// new and reports whether a row was created. When the row already exists
// only the volatile metrics are refreshed; title, URLs and timestamps are
// never overwritten.
func (s *Store) UpsertItem(ctx context.Context, ownerID int64, pf models.Platform, d platform.ItemData) (bool, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (owner_id, platform, remote_id, title, description, url,
			permalink, container, author, thumbnail_url, is_own_post, is_active,
			view_count, comment_count, published_at, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?, ?, ?)
		ON CONFLICT(platform, remote_id) DO NOTHING`,
		ownerID, pf, d.RemoteID, d.Title, d.Description, d.URL,
		d.Permalink, d.Container, d.Author, d.ThumbnailURL,
		d.ViewCount, d.CommentCount, d.PublishedAt.UTC(), now)
	if err != nil {
		return false, fmt.Errorf("failed to upsert item %s: %w", d.RemoteID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE items SET view_count = ?, comment_count = ?, last_checked = ?
		WHERE platform = ? AND remote_id = ?`,
		d.ViewCount, d.CommentCount, now, pf, d.RemoteID)
	if err != nil {
		return false, fmt.Errorf("failed to refresh item metrics %s: %w", d.RemoteID, err)
	}
	return false, nil
}

// InsertOwnItem records an item the operator created through this app.
func (s *Store) InsertOwnItem(ctx context.Context, ownerID int64, pf models.Platform, d platform.ItemData) (*models.Item, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (owner_id, platform, remote_id, title, description, url,
			permalink, container, author, thumbnail_url, is_own_post, is_active,
			view_count, comment_count, published_at, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1, 0, 0, ?, ?)`,
		ownerID, pf, d.RemoteID, d.Title, d.Description, d.URL,
		d.Permalink, d.Container, d.Author, d.ThumbnailURL,
		d.PublishedAt.UTC(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert own item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.ItemByID(ctx, id)
}

// ItemByID fetches an item by primary key. Returns (nil, nil) when absent.
func (s *Store) ItemByID(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item, `SELECT * FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("item lookup failed: %w", err)
	}
	return &item, nil
}

// ListItems returns active items for an owner and platform, newest first,
// paginated by a (published_at, id) cursor. Passing a zero cursor starts
// from the top.
func (s *Store) ListItems(ctx context.Context, ownerID int64, pf models.Platform, limit int, cursorTime time.Time, cursorID int64) ([]models.Item, error) {
	var items []models.Item
	var err error

	const baseQuery = `SELECT * FROM items WHERE owner_id = ? AND platform = ? AND is_active = 1`
	const orderBy = ` ORDER BY published_at DESC, id DESC LIMIT ?`

	if cursorID > 0 {
		query := baseQuery + ` AND ((published_at < ?) OR (published_at = ? AND id < ?))` + orderBy
		err = s.db.SelectContext(ctx, &items, query,
			ownerID, pf, cursorTime.UTC(), cursorTime.UTC(), cursorID, limit)
	} else {
		err = s.db.SelectContext(ctx, &items, baseQuery+orderBy, ownerID, pf, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("item listing failed: %w", err)
	}
	return items, nil
}

// UpdateItemDescription mirrors a remote body edit into the local row.
func (s *Store) UpdateItemDescription(ctx context.Context, id int64, description string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET description = ? WHERE id = ?`, description, id)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}
	return nil
}

// DeleteItem removes an item row; comments and responses cascade.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	return nil
}

// --- comments ---

// InsertCommentIfAbsent inserts a fetched comment and reports whether a
// row was created. Existing comments are never updated: content is
// immutable once fetched.
func (s *Store) InsertCommentIfAbsent(ctx context.Context, itemID int64, pf models.Platform, d platform.CommentData) (bool, error) {
	var parent sql.NullString
	if d.ParentRemoteID != "" {
		parent = sql.NullString{String: d.ParentRemoteID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (item_id, platform, remote_id, author, author_channel_id,
			content, permalink, parent_remote_id, like_count, is_reply, published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, remote_id) DO NOTHING`,
		itemID, pf, d.RemoteID, d.Author, d.AuthorChannelID,
		d.Content, d.Permalink, parent, d.LikeCount, d.IsReply,
		d.PublishedAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert comment %s: %w", d.RemoteID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CommentByID fetches a comment by primary key. Returns (nil, nil) when absent.
func (s *Store) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	var c models.Comment
	err := s.db.GetContext(ctx, &c, `SELECT * FROM comments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("comment lookup failed: %w", err)
	}
	return &c, nil
}

// ListComments returns an item's comments newest first. Threaded replies
// are included only when includeReplies is set (the YouTube dashboard
// lists top-level comments only).
func (s *Store) ListComments(ctx context.Context, itemID int64, includeReplies bool) ([]models.Comment, error) {
	query := `SELECT * FROM comments WHERE item_id = ?`
	if !includeReplies {
		query += ` AND is_reply = 0`
	}
	query += ` ORDER BY published_at DESC, id DESC`

	var comments []models.Comment
	if err := s.db.SelectContext(ctx, &comments, query, itemID); err != nil {
		return nil, fmt.Errorf("comment listing failed: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a comment row; its response cascades.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment %d: %w", id, err)
	}
	return nil
}

// --- responses ---

// ResponseByID fetches a draft by primary key. Returns (nil, nil) when absent.
func (s *Store) ResponseByID(ctx context.Context, id int64) (*models.Response, error) {
	var r models.Response
	err := s.db.GetContext(ctx, &r, `SELECT * FROM responses WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("response lookup failed: %w", err)
	}
	return &r, nil
}

// ResponseByCommentID fetches the draft attached to a comment. Returns
// (nil, nil) when the comment has no draft yet.
func (s *Store) ResponseByCommentID(ctx context.Context, commentID int64) (*models.Response, error) {
	var r models.Response
	err := s.db.GetContext(ctx, &r, `SELECT * FROM responses WHERE comment_id = ?`, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("response lookup failed: %w", err)
	}
	return &r, nil
}

// UpsertResponse creates the draft for a comment or overwrites an existing
// one in a single statement: new generated text and tone, edited text and
// remote reply id cleared, status forced back to pending. Last write wins
// at the row level.
func (s *Store) UpsertResponse(ctx context.Context, commentID int64, generatedText string, tone models.Tone) (*models.Response, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (comment_id, generated_text, tone, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT(comment_id) DO UPDATE SET
			generated_text = excluded.generated_text,
			tone = excluded.tone,
			status = 'pending',
			edited_text = NULL,
			remote_reply_id = NULL,
			published_at = NULL,
			created_at = excluded.created_at`,
		commentID, generatedText, tone, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert response: %w", err)
	}
	return s.ResponseByCommentID(ctx, commentID)
}

// SetEditedText stores the operator's manual edit; status is untouched.
func (s *Store) SetEditedText(ctx context.Context, id int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE responses SET edited_text = ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("failed to update response %d: %w", id, err)
	}
	return nil
}

// MarkRejected transitions a draft to rejected from any prior status.
func (s *Store) MarkRejected(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE responses SET status = 'rejected' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reject response %d: %w", id, err)
	}
	return nil
}

// PublishResponse publishes a draft atomically. The whole operation runs
// in one immediate transaction so concurrent publishers serialize on the
// writer lock: the status guard is re-checked under the lock, send is
// invoked at most once per winner, and a failed send rolls back leaving
// the row pending. send receives the draft and returns the remote reply id.
func (s *Store) PublishResponse(ctx context.Context, id int64, send func(r *models.Response) (string, error)) (*models.Response, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	var r models.Response
	if err := tx.GetContext(ctx, &r, `SELECT * FROM responses WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("response lookup failed: %w", err)
	}

	// A remote reply id means this lineage already published once, even
	// if the draft was rejected afterwards. Only a generate overwrite,
	// which clears the id, opens a new lineage that may publish.
	if r.Status == models.StatusPublished || r.RemoteReplyID.Valid {
		return &r, ErrAlreadyPublished
	}

	replyID, err := send(&r)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE responses SET status = 'published', remote_reply_id = ?, published_at = ?
		WHERE id = ?`, replyID, now, id); err != nil {
		return nil, fmt.Errorf("failed to record publish for response %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish for response %d: %w", id, err)
	}

	r.Status = models.StatusPublished
	r.RemoteReplyID = sql.NullString{String: replyID, Valid: true}
	r.PublishedAt = sql.NullTime{Time: now, Valid: true}
	return &r, nil
}

// --- stats ---

// Stats aggregates the dashboard metrics for one operator and platform.
type Stats struct {
	TotalItems         int64   `json:"total_items"`
	TotalComments      int64   `json:"total_comments"`
	UnreadComments     int64   `json:"unread_comments"`
	PendingResponses   int64   `json:"pending_responses"`
	PublishedResponses int64   `json:"published_responses"`
	ItemsLast7Days     int64   `json:"items_last_7_days"`
	AvgComments        float64 `json:"avg_comments"`
	ResponseRate       float64 `json:"response_rate"`
}

// GetStats computes the dashboard metrics: totals, unread comments (no
// draft yet or a pending one), response counts by status, recent item
// count and the share of items with at least one drafted reply.
func (s *Store) GetStats(ctx context.Context, ownerID int64, pf models.Platform) (*Stats, error) {
	var st Stats

	err := s.db.GetContext(ctx, &st.TotalItems, `
		SELECT COUNT(*) FROM items
		WHERE owner_id = ? AND platform = ? AND is_active = 1`, ownerID, pf)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	err = s.db.GetContext(ctx, &st.TotalComments, `
		SELECT COUNT(*) FROM comments c
		JOIN items i ON i.id = c.item_id
		WHERE i.owner_id = ? AND i.platform = ? AND c.is_reply = 0`, ownerID, pf)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	err = s.db.GetContext(ctx, &st.UnreadComments, `
		SELECT COUNT(*) FROM comments c
		JOIN items i ON i.id = c.item_id
		LEFT JOIN responses r ON r.comment_id = c.id
		WHERE i.owner_id = ? AND i.platform = ?
		  AND (r.id IS NULL OR r.status = 'pending')`, ownerID, pf)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	err = s.db.GetContext(ctx, &st.PendingResponses, `
		SELECT COUNT(*) FROM responses r
		JOIN comments c ON c.id = r.comment_id
		JOIN items i ON i.id = c.item_id
		WHERE i.owner_id = ? AND i.platform = ? AND r.status = 'pending'`, ownerID, pf)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	err = s.db.GetContext(ctx, &st.PublishedResponses, `
		SELECT COUNT(*) FROM responses r
		JOIN comments c ON c.id = r.comment_id
		JOIN items i ON i.id = c.item_id
		WHERE i.owner_id = ? AND i.platform = ? AND r.status = 'published'`, ownerID, pf)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -7)
	err = s.db.GetContext(ctx, &st.ItemsLast7Days, `
		SELECT COUNT(*) FROM items
		WHERE owner_id = ? AND platform = ? AND is_active = 1 AND published_at >= ?`,
		ownerID, pf, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	var itemsWithResponses int64
	err = s.db.GetContext(ctx, &itemsWithResponses, `
		SELECT COUNT(DISTINCT i.id) FROM items i
		JOIN comments c ON c.item_id = i.id
		JOIN responses r ON r.comment_id = c.id
		WHERE i.owner_id = ? AND i.platform = ? AND i.is_active = 1`, ownerID, pf)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	if st.TotalItems > 0 {
		st.AvgComments = float64(st.TotalComments) / float64(st.TotalItems)
		st.ResponseRate = float64(itemsWithResponses) / float64(st.TotalItems) * 100
	}
	return &st, nil
}
