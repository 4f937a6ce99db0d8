package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"replydeck/manager/internal/genai"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/store"
)

// GenerateResponse drafts a reply for a comment in the requested tone and
// stores it. An existing draft is overwritten wholesale regardless of its
// status: new text, edited text cleared, status back to pending. Unknown
// tones fall back to friendly. postContext overrides the default context
// (the item's title) when non-empty. Generation itself never fails; on
// backend trouble the draft carries the tone's canned fallback sentence.
func (w *Workflow) GenerateResponse(ctx context.Context, op *models.Operator, commentID int64, tone models.Tone, postContext string) (*models.Response, error) {
	comment, item, err := w.authorizedComment(ctx, op, commentID)
	if err != nil {
		return nil, err
	}

	if !tone.Valid() {
		tone = models.ToneFriendly
	}

	if postContext == "" {
		postContext = "Post: " + item.Title
	}
	text := w.gen.Generate(ctx, comment.Content, tone, postContext)

	return w.store.UpsertResponse(ctx, comment.ID, text, tone)
}

// EditResponse replaces the draft's text with the operator's version. Only
// pending drafts can be edited, and the text must be non-empty after
// trimming.
func (w *Workflow) EditResponse(ctx context.Context, op *models.Operator, responseID int64, text string) (*models.Response, error) {
	resp, _, err := w.authorizedResponse(ctx, op, responseID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: edited text is empty", ErrValidation)
	}
	if resp.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: response is %s", ErrConflict, resp.Status)
	}

	if err := w.store.SetEditedText(ctx, resp.ID, text); err != nil {
		return nil, err
	}
	return w.store.ResponseByID(ctx, resp.ID)
}

// PublishResponse posts the draft's final text (the edit when present) as
// a remote reply to its comment, then records the remote reply id and the
// publish time. The status re-check and the remote call run inside one
// write transaction, so concurrent publishes of the same draft result in
// exactly one remote reply; the losers get ErrConflict. A failed remote
// call leaves the draft pending.
func (w *Workflow) PublishResponse(ctx context.Context, op *models.Operator, responseID int64) (*models.Response, error) {
	resp, comment, err := w.authorizedResponse(ctx, op, responseID)
	if err != nil {
		return nil, err
	}
	if resp.Status == models.StatusPublished || resp.RemoteReplyID.Valid {
		return nil, fmt.Errorf("%w: response already published", ErrConflict)
	}

	client, err := w.clients(comment.Platform)
	if err != nil {
		return nil, err
	}

	published, err := w.store.PublishResponse(ctx, resp.ID, func(r *models.Response) (string, error) {
		return client.Reply(ctx, comment.RemoteID, r.FinalText())
	})
	if errors.Is(err, store.ErrAlreadyPublished) {
		return nil, fmt.Errorf("%w: response already published", ErrConflict)
	}
	if err != nil {
		log.Error().Err(err).
			Int64("response_id", resp.ID).
			Str("platform", string(comment.Platform)).
			Msg("Publish failed, draft left pending")
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	log.Info().
		Int64("response_id", published.ID).
		Str("remote_reply_id", published.RemoteReplyID.String).
		Msg("Response published")
	return published, nil
}

// RejectResponse marks a draft as rejected, from any prior status.
// Rejecting an already rejected draft is a no-op. Rejecting a published
// draft only withdraws it locally: the remote reply, if one was posted,
// stays up, and the remote reply id is kept on the row.
func (w *Workflow) RejectResponse(ctx context.Context, op *models.Operator, responseID int64) (*models.Response, error) {
	resp, _, err := w.authorizedResponse(ctx, op, responseID)
	if err != nil {
		return nil, err
	}

	if err := w.store.MarkRejected(ctx, resp.ID); err != nil {
		return nil, err
	}
	return w.store.ResponseByID(ctx, resp.ID)
}

// DeleteComment removes a stored comment. The remote comment is removed
// too (a moderator removal when the bot is not the author), and if a bot
// reply was published under it that reply is deleted first. Remote
// deletions are best effort: failures are logged and the local delete
// proceeds.
func (w *Workflow) DeleteComment(ctx context.Context, op *models.Operator, commentID int64) error {
	comment, _, err := w.authorizedComment(ctx, op, commentID)
	if err != nil {
		return err
	}

	client, err := w.clients(comment.Platform)
	if err != nil {
		return err
	}

	resp, err := w.store.ResponseByCommentID(ctx, comment.ID)
	if err != nil {
		return err
	}
	if resp != nil && resp.RemoteReplyID.Valid {
		if err := client.DeleteComment(ctx, resp.RemoteReplyID.String); err != nil {
			log.Error().Err(err).
				Str("remote_reply_id", resp.RemoteReplyID.String).
				Msg("Failed to delete published reply remotely")
		}
	}

	if err := client.DeleteComment(ctx, comment.RemoteID); err != nil {
		log.Error().Err(err).
			Str("remote_id", comment.RemoteID).
			Msg("Failed to delete comment remotely")
	}

	return w.store.DeleteComment(ctx, comment.ID)
}

// GenerateJobPost drafts a job posting from a structured brief. The draft
// is returned for operator review, not stored or published.
func (w *Workflow) GenerateJobPost(ctx context.Context, in genai.JobPostInput) genai.PostDraft {
	return w.gen.GenerateJobPost(ctx, in)
}

// GenerateCustomPost drafts a free-form post about a topic.
func (w *Workflow) GenerateCustomPost(ctx context.Context, topic, tone, length string) genai.PostDraft {
	return w.gen.GenerateCustomPost(ctx, topic, tone, length)
}

// authorizedResponse loads a draft and its comment, verifying ownership
// through the comment's item.
func (w *Workflow) authorizedResponse(ctx context.Context, op *models.Operator, responseID int64) (*models.Response, *models.Comment, error) {
	resp, err := w.store.ResponseByID(ctx, responseID)
	if err != nil {
		return nil, nil, err
	}
	if resp == nil {
		return nil, nil, ErrNotFound
	}
	comment, _, err := w.authorizedComment(ctx, op, resp.CommentID)
	if err != nil {
		return nil, nil, err
	}
	return resp, comment, nil
}
