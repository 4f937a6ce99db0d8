// Package api contains the HTTP handlers for the operator API. Handlers
// decode requests, call the workflow layer and translate its sentinel
// errors to status codes; no business rules live here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"replydeck/manager/internal/genai"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/platform"
	"replydeck/manager/internal/server/pagination"
	"replydeck/manager/internal/workflow"
)

const defaultLimit = 25
const maxLimit = 100

// operatorCtxKey carries the authenticated operator across the middleware
// boundary.
type operatorCtxKey struct{}

// WithOperator attaches the authenticated operator to a request context.
// Called by the server's auth middleware.
func WithOperator(ctx context.Context, op *models.Operator) context.Context {
	return context.WithValue(ctx, operatorCtxKey{}, op)
}

// OperatorFrom returns the operator attached to the request context, nil
// when the request never passed the auth middleware.
func OperatorFrom(r *http.Request) *models.Operator {
	op, _ := r.Context().Value(operatorCtxKey{}).(*models.Operator)
	return op
}

// Handler holds the handler dependencies.
type Handler struct {
	wf *workflow.Workflow
}

// NewHandler creates a handler instance.
func NewHandler(wf *workflow.Workflow) *Handler {
	return &Handler{wf: wf}
}

// Register attaches all /v1 routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/{platform}/sync-items", h.syncItems)
	mux.HandleFunc("GET /v1/{platform}/items", h.listItems)
	mux.HandleFunc("GET /v1/{platform}/items/{itemID}/comments", h.listComments)
	mux.HandleFunc("POST /v1/{platform}/items/{itemID}/sync-comments", h.syncComments)
	mux.HandleFunc("GET /v1/{platform}/stats", h.stats)

	mux.HandleFunc("POST /v1/comments/{commentID}/generate", h.generateResponse)
	mux.HandleFunc("DELETE /v1/comments/{commentID}", h.deleteComment)

	mux.HandleFunc("POST /v1/responses/{responseID}/edit", h.editResponse)
	mux.HandleFunc("POST /v1/responses/{responseID}/publish", h.publishResponse)
	mux.HandleFunc("POST /v1/responses/{responseID}/reject", h.rejectResponse)

	mux.HandleFunc("POST /v1/reddit/posts", h.createPost)
	mux.HandleFunc("POST /v1/reddit/posts/{itemID}/edit", h.editPost)
	mux.HandleFunc("DELETE /v1/reddit/posts/{itemID}", h.deletePost)

	mux.HandleFunc("POST /v1/generate/job-post", h.generateJobPost)
	mux.HandleFunc("POST /v1/generate/custom-post", h.generateCustomPost)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing JSON response body")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// fail maps workflow sentinel errors to HTTP status codes.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrRemote):
		writeError(w, r, http.StatusBadGateway, err.Error())
	case errors.Is(err, platform.ErrUnsupported):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func platformFrom(r *http.Request) (models.Platform, error) {
	pf := models.Platform(r.PathValue("platform"))
	if !pf.Valid() {
		return "", fmt.Errorf("unknown platform %q", string(pf))
	}
	return pf, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// --- sync and listing ---

func (h *Handler) syncItems(w http.ResponseWriter, r *http.Request) {
	pf, err := platformFrom(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Container string `json:"container"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Container == "" {
		writeError(w, r, http.StatusBadRequest, "container is required")
		return
	}

	result, err := h.wf.SyncItems(r.Context(), OperatorFrom(r), pf, req.Container)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type itemsResponse struct {
	Items      []models.Item `json:"items"`
	NextCursor *string       `json:"next_cursor,omitempty"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	pf, err := platformFrom(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			log.Warn().Err(err).Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			writeError(w, r, http.StatusBadRequest,
				fmt.Sprintf("invalid 'limit' parameter: must be between 1 and %d", maxLimit))
			return
		}
		limit = parsed
	}

	var cursor pagination.Cursor
	if token := query.Get("cursor"); token != "" {
		cursor, err = pagination.Decode(token)
		if err != nil {
			log.Warn().Err(err).Str("cursor", token).Msg("Invalid 'cursor' parameter")
			writeError(w, r, http.StatusBadRequest, "invalid 'cursor' parameter")
			return
		}
	}

	// Fetch one extra row to decide whether a next page exists.
	items, err := h.wf.ListItems(r.Context(), OperatorFrom(r), pf, limit+1, cursor.Time, cursor.ID)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := itemsResponse{Items: items}
	if len(items) > limit {
		resp.Items = items[:limit]
		last := resp.Items[len(resp.Items)-1]
		token := pagination.Cursor{Time: last.PublishedAt.UTC(), ID: last.ID}.Encode()
		resp.NextCursor = &token
	}
	if resp.Items == nil {
		resp.Items = []models.Item{}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	if _, err := platformFrom(r); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	comments, err := h.wf.ListComments(r.Context(), OperatorFrom(r), itemID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) syncComments(w http.ResponseWriter, r *http.Request) {
	if _, err := platformFrom(r); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.wf.SyncComments(r.Context(), OperatorFrom(r), itemID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	pf, err := platformFrom(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.wf.Stats(r.Context(), OperatorFrom(r), pf)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// --- response lifecycle ---

func (h *Handler) generateResponse(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "commentID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Tone    models.Tone `json:"tone"`
		Context string      `json:"context"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.wf.GenerateResponse(r.Context(), OperatorFrom(r), commentID, req.Tone, req.Context)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) editResponse(w http.ResponseWriter, r *http.Request) {
	responseID, err := pathID(r, "responseID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		EditedText string `json:"edited_text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.wf.EditResponse(r.Context(), OperatorFrom(r), responseID, req.EditedText)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) publishResponse(w http.ResponseWriter, r *http.Request) {
	responseID, err := pathID(r, "responseID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.wf.PublishResponse(r.Context(), OperatorFrom(r), responseID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) rejectResponse(w http.ResponseWriter, r *http.Request) {
	responseID, err := pathID(r, "responseID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.wf.RejectResponse(r.Context(), OperatorFrom(r), responseID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "commentID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.wf.DeleteComment(r.Context(), OperatorFrom(r), commentID); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- posting ---

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subreddit string `json:"subreddit"`
		Title     string `json:"title"`
		Content   string `json:"content"`
		Kind      string `json:"kind"`
		ImageURL  string `json:"image_url"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Kind == "" {
		req.Kind = string(platform.KindText)
	}

	item, err := h.wf.CreatePost(r.Context(), OperatorFrom(r), workflow.CreatePostInput{
		Platform:   models.PlatformReddit,
		Container:  req.Subreddit,
		Title:      req.Title,
		Body:       req.Content,
		Kind:       platform.PostKind(req.Kind),
		Attachment: req.ImageURL,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, item)
}

func (h *Handler) editPost(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.wf.EditPost(r.Context(), OperatorFrom(r), itemID, req.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.wf.DeletePost(r.Context(), OperatorFrom(r), itemID); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- post drafting ---

func (h *Handler) generateJobPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobTitle     string   `json:"job_title"`
		CompanyName  string   `json:"company_name"`
		JobType      string   `json:"job_type"`
		Location     string   `json:"location"`
		SalaryRange  string   `json:"salary_range"`
		Requirements []string `json:"requirements"`
		Benefits     []string `json:"benefits"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.JobTitle == "" || req.CompanyName == "" {
		writeError(w, r, http.StatusBadRequest, "job_title and company_name are required")
		return
	}

	draft := h.wf.GenerateJobPost(r.Context(), genai.JobPostInput{
		JobTitle:     req.JobTitle,
		CompanyName:  req.CompanyName,
		JobType:      req.JobType,
		Location:     req.Location,
		SalaryRange:  req.SalaryRange,
		Requirements: req.Requirements,
		Benefits:     req.Benefits,
	})
	writeJSON(w, r, http.StatusOK, draft)
}

func (h *Handler) generateCustomPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic  string `json:"topic"`
		Tone   string `json:"tone"`
		Length string `json:"length"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Topic == "" {
		writeError(w, r, http.StatusBadRequest, "topic is required")
		return
	}
	if req.Tone == "" {
		req.Tone = "profesional"
	}
	if req.Length == "" {
		req.Length = "medio"
	}

	draft := h.wf.GenerateCustomPost(r.Context(), req.Topic, req.Tone, req.Length)
	writeJSON(w, r, http.StatusOK, draft)
}
