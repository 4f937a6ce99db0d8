package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"replydeck/manager/internal/genai"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/platform"
)

// CreatePostInput is the operator's request to publish a new post through
// the bot account.
type CreatePostInput struct {
	Platform   models.Platform   `json:"platform"`
	Container  string            `json:"container"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Kind       platform.PostKind `json:"kind"`
	Attachment string            `json:"attachment,omitempty"`
}

// CreatePost submits a new post remotely and records it locally as an own
// post. Titles are trimmed and truncated to the platform limit before
// submission.
func (w *Workflow) CreatePost(ctx context.Context, op *models.Operator, in CreatePostInput) (*models.Item, error) {
	if !in.Platform.Valid() {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrValidation, in.Platform)
	}
	if in.Container == "" {
		return nil, fmt.Errorf("%w: container is required", ErrValidation)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown post kind %q", ErrValidation, in.Kind)
	}
	if in.Kind == platform.KindImage && in.Attachment == "" {
		return nil, fmt.Errorf("%w: image posts require an attachment URL", ErrValidation)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if runes := []rune(title); len(runes) > platform.MaxTitleLength {
		title = string(runes[:platform.MaxTitleLength])
	}

	client, err := w.clients(in.Platform)
	if err != nil {
		return nil, err
	}

	data, err := client.CreateItem(ctx, in.Container, title, in.Body, in.Kind, in.Attachment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	item, err := w.store.InsertOwnItem(ctx, op.ID, in.Platform, *data)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("platform", string(in.Platform)).
		Str("remote_id", data.RemoteID).
		Str("container", in.Container).
		Msg("Post created")
	return item, nil
}

// EditPost replaces the body of a post the operator created through this
// app, remotely first and then in the local mirror.
func (w *Workflow) EditPost(ctx context.Context, op *models.Operator, itemID int64, newBody string) (*models.Item, error) {
	item, err := w.authorizedItem(ctx, op, itemID)
	if err != nil {
		return nil, err
	}
	if !item.CanEdit(op) {
		return nil, fmt.Errorf("%w: item was not created by this account", ErrUnauthorized)
	}

	client, err := w.clients(item.Platform)
	if err != nil {
		return nil, err
	}

	if err := client.EditItem(ctx, item.RemoteID, newBody); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	if err := w.store.UpdateItemDescription(ctx, item.ID, newBody); err != nil {
		return nil, err
	}
	return w.store.ItemByID(ctx, item.ID)
}

// DeletePost removes a post the operator created through this app,
// remotely and then locally. Comments and drafts cascade with the item.
func (w *Workflow) DeletePost(ctx context.Context, op *models.Operator, itemID int64) error {
	item, err := w.authorizedItem(ctx, op, itemID)
	if err != nil {
		return err
	}
	if !item.CanDelete(op) {
		return fmt.Errorf("%w: item was not created by this account", ErrUnauthorized)
	}

	client, err := w.clients(item.Platform)
	if err != nil {
		return err
	}

	if err := client.DeleteItem(ctx, item.RemoteID); err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}

	log.Info().
		Str("platform", string(item.Platform)).
		Str("remote_id", item.RemoteID).
		Msg("Post deleted")
	return w.store.DeleteItem(ctx, item.ID)
}

// Probe checks connectivity to each configured platform and to the
// generation backend, returning a per-target status map. It needs no
// database, so it takes its dependencies directly.
func Probe(ctx context.Context, clients platform.Factory, gen *genai.Generator) map[string]bool {
	status := map[string]bool{
		"generator": gen.TestConnection(ctx),
	}

	for _, pf := range []models.Platform{models.PlatformReddit, models.PlatformYouTube} {
		client, err := clients(pf)
		if err != nil {
			status[string(pf)] = false
			continue
		}
		if err := client.TestConnection(ctx); err != nil {
			log.Error().Err(err).Str("platform", string(pf)).Msg("Platform probe failed")
			status[string(pf)] = false
			continue
		}
		status[string(pf)] = true
	}
	return status
}
