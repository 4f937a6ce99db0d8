// Package workflow implements the operator-facing operations: syncing
// remote items and comments into the local database, drafting replies,
// and the review lifecycle (edit, publish, reject). It is the boundary
// where remote fetch failures degrade to empty results instead of errors.
package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"replydeck/manager/internal/genai"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/platform"
	"replydeck/manager/internal/store"
)

// Workflow ties the repository, the platform adapters and the generator
// together. Platform clients are acquired per operation through the
// factory rather than held for the process lifetime.
type Workflow struct {
	store        *store.Store
	clients      platform.Factory
	gen          *genai.Generator
	itemLimit    int
	commentLimit int
}

// New creates a workflow. itemLimit and commentLimit bound how much a
// single sync call fetches.
func New(st *store.Store, clients platform.Factory, gen *genai.Generator, itemLimit, commentLimit int) *Workflow {
	return &Workflow{
		store:        st,
		clients:      clients,
		gen:          gen,
		itemLimit:    itemLimit,
		commentLimit: commentLimit,
	}
}

// SyncResult reports one sync pass: how many records the platform
// returned and how many were new to the database.
type SyncResult struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
}

// SyncItems pulls the newest items from a container (subreddit or
// channel) and inserts the unseen ones for the operator. Fetch failures
// are logged and reported as an empty pass, never as an error: the next
// scheduled sync simply tries again.
func (w *Workflow) SyncItems(ctx context.Context, op *models.Operator, pf models.Platform, container string) (*SyncResult, error) {
	client, err := w.clients(pf)
	if err != nil {
		return nil, err
	}

	items, err := client.ListItems(ctx, container, w.itemLimit)
	if err != nil {
		log.Error().Err(err).
			Str("platform", string(pf)).
			Str("container", container).
			Msg("Item fetch failed, skipping pass")
		return &SyncResult{}, nil
	}

	result := &SyncResult{Fetched: len(items)}
	for _, d := range items {
		created, err := w.store.UpsertItem(ctx, op.ID, pf, d)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		}
	}

	log.Info().
		Str("platform", string(pf)).
		Str("container", container).
		Int("fetched", result.Fetched).
		Int("created", result.Created).
		Msg("Item sync complete")
	return result, nil
}

// SyncComments pulls comments for one item and inserts the unseen ones.
// Comments already stored are never modified. As with SyncItems, a fetch
// failure yields an empty pass.
func (w *Workflow) SyncComments(ctx context.Context, op *models.Operator, itemID int64) (*SyncResult, error) {
	item, err := w.authorizedItem(ctx, op, itemID)
	if err != nil {
		return nil, err
	}

	client, err := w.clients(item.Platform)
	if err != nil {
		return nil, err
	}

	comments, err := client.ListComments(ctx, item.RemoteID, w.commentLimit)
	if err != nil {
		log.Error().Err(err).
			Str("platform", string(item.Platform)).
			Str("remote_id", item.RemoteID).
			Msg("Comment fetch failed, skipping pass")
		return &SyncResult{}, nil
	}

	result := &SyncResult{Fetched: len(comments)}
	for _, d := range comments {
		created, err := w.store.InsertCommentIfAbsent(ctx, item.ID, item.Platform, d)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		}
	}

	log.Info().
		Str("platform", string(item.Platform)).
		Str("remote_id", item.RemoteID).
		Int("fetched", result.Fetched).
		Int("created", result.Created).
		Msg("Comment sync complete")
	return result, nil
}

// authorizedItem loads an item and verifies it belongs to the operator.
func (w *Workflow) authorizedItem(ctx context.Context, op *models.Operator, itemID int64) (*models.Item, error) {
	item, err := w.store.ItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if item.OwnerID != op.ID {
		return nil, ErrUnauthorized
	}
	return item, nil
}

// authorizedComment loads a comment together with its owning item,
// verifying ownership through the item.
func (w *Workflow) authorizedComment(ctx context.Context, op *models.Operator, commentID int64) (*models.Comment, *models.Item, error) {
	comment, err := w.store.CommentByID(ctx, commentID)
	if err != nil {
		return nil, nil, err
	}
	if comment == nil {
		return nil, nil, ErrNotFound
	}
	item, err := w.authorizedItem(ctx, op, comment.ItemID)
	if err != nil {
		return nil, nil, err
	}
	return comment, item, nil
}

// ListItems returns one page of the operator's items for a platform.
func (w *Workflow) ListItems(ctx context.Context, op *models.Operator, pf models.Platform, limit int, cursorTime time.Time, cursorID int64) ([]models.Item, error) {
	return w.store.ListItems(ctx, op.ID, pf, limit, cursorTime, cursorID)
}

// ListComments returns an item's stored comments with their drafts, if
// any. Reddit threads include nested replies; YouTube lists top-level
// comments only, matching what the dashboard renders.
func (w *Workflow) ListComments(ctx context.Context, op *models.Operator, itemID int64) ([]CommentWithResponse, error) {
	item, err := w.authorizedItem(ctx, op, itemID)
	if err != nil {
		return nil, err
	}

	includeReplies := item.Platform == models.PlatformReddit
	comments, err := w.store.ListComments(ctx, item.ID, includeReplies)
	if err != nil {
		return nil, err
	}

	out := make([]CommentWithResponse, 0, len(comments))
	for _, c := range comments {
		resp, err := w.store.ResponseByCommentID(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CommentWithResponse{Comment: c, Response: resp})
	}
	return out, nil
}

// CommentWithResponse pairs a stored comment with its draft, nil when no
// draft exists yet.
type CommentWithResponse struct {
	Comment  models.Comment   `json:"comment"`
	Response *models.Response `json:"response,omitempty"`
}

// Stats returns the dashboard aggregates for the operator on a platform.
func (w *Workflow) Stats(ctx context.Context, op *models.Operator, pf models.Platform) (*store.Stats, error) {
	return w.store.GetStats(ctx, op.ID, pf)
}
