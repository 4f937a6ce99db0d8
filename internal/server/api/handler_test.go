package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replydeck/manager/internal/database"
	"replydeck/manager/internal/genai"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/platform"
	"replydeck/manager/internal/store"
	"replydeck/manager/internal/workflow"
)

// stubClient serves canned remote data for handler tests.
type stubClient struct{}

var _ platform.Client = (*stubClient)(nil)

func (stubClient) ListItems(ctx context.Context, container string, limit int) ([]platform.ItemData, error) {
	return []platform.ItemData{{
		RemoteID:    "abc",
		Title:       "Oferta",
		Container:   container,
		PublishedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}, nil
}

func (stubClient) ListComments(ctx context.Context, itemRemoteID string, limit int) ([]platform.CommentData, error) {
	return []platform.CommentData{{
		RemoteID:    "c1",
		Author:      "curious",
		Content:     "How do I apply?",
		PublishedAt: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}}, nil
}

func (stubClient) Reply(ctx context.Context, commentRemoteID, text string) (string, error) {
	return "reply1", nil
}

func (stubClient) CreateItem(ctx context.Context, container, title, body string, kind platform.PostKind, attachment string) (*platform.ItemData, error) {
	return &platform.ItemData{RemoteID: "own1", Title: title, Container: container, PublishedAt: time.Now().UTC()}, nil
}

func (stubClient) EditItem(ctx context.Context, itemRemoteID, newBody string) error { return nil }
func (stubClient) DeleteItem(ctx context.Context, itemRemoteID string) error        { return nil }
func (stubClient) DeleteComment(ctx context.Context, commentRemoteID string) error  { return nil }
func (stubClient) TestConnection(ctx context.Context) error                         { return nil }

type apiEnv struct {
	srv *httptest.Server
	st  *store.Store
	op  *models.Operator
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	op, err := st.CreateOperator(context.Background(), "alice", "key-alice")
	require.NoError(t, err)

	factory := func(p models.Platform) (platform.Client, error) { return stubClient{}, nil }
	gen := genai.NewGenerator("http://127.0.0.1:1", "llama3") // drafts use fallbacks
	wf := workflow.New(st, factory, gen, 25, 100)

	mux := http.NewServeMux()
	NewHandler(wf).Register(mux)

	// Stand-in for the server's auth middleware.
	authed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
	})

	srv := httptest.NewServer(authed)
	t.Cleanup(srv.Close)

	return &apiEnv{srv: srv, st: st, op: op}
}

// call performs a JSON request and decodes the response body into out.
func (e *apiEnv) call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *apiEnv) seedComment(t *testing.T) (itemID, commentID int64) {
	t.Helper()

	status := e.call(t, http.MethodPost, "/v1/reddit/sync-items", map[string]string{"container": "golang"}, nil)
	require.Equal(t, http.StatusOK, status)

	var items itemsResponse
	status = e.call(t, http.MethodGet, "/v1/reddit/items", nil, &items)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, items.Items, 1)
	itemID = items.Items[0].ID

	status = e.call(t, http.MethodPost, fmt.Sprintf("/v1/reddit/items/%d/sync-comments", itemID), map[string]any{}, nil)
	require.Equal(t, http.StatusOK, status)

	var page struct {
		Comments []workflow.CommentWithResponse `json:"comments"`
	}
	status = e.call(t, http.MethodGet, fmt.Sprintf("/v1/reddit/items/%d/comments", itemID), nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Comments, 1)

	return itemID, page.Comments[0].Comment.ID
}

func TestSyncItems_RequiresContainer(t *testing.T) {
	env := newAPIEnv(t)

	status := env.call(t, http.MethodPost, "/v1/reddit/sync-items", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListItems_UnknownPlatform(t *testing.T) {
	env := newAPIEnv(t)

	status := env.call(t, http.MethodGet, "/v1/myspace/items", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListItems_InvalidCursorAndLimit(t *testing.T) {
	env := newAPIEnv(t)

	status := env.call(t, http.MethodGet, "/v1/reddit/items?cursor=@@@", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.call(t, http.MethodGet, "/v1/reddit/items?limit=5000", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGenerateAndLifecycleRoutes(t *testing.T) {
	env := newAPIEnv(t)
	_, commentID := env.seedComment(t)

	// Generate a draft (backend is down, deterministic fallback text).
	var draft models.Response
	status := env.call(t, http.MethodPost, fmt.Sprintf("/v1/comments/%d/generate", commentID),
		map[string]string{"tone": "formal"}, &draft)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusPending, draft.Status)
	assert.Equal(t, models.ToneFormal, draft.Tone)
	assert.NotEmpty(t, draft.GeneratedText)

	// Empty edit is rejected.
	status = env.call(t, http.MethodPost, fmt.Sprintf("/v1/responses/%d/edit", draft.ID),
		map[string]string{"edited_text": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Valid edit.
	var edited models.Response
	status = env.call(t, http.MethodPost, fmt.Sprintf("/v1/responses/%d/edit", draft.ID),
		map[string]string{"edited_text": "Gracias, aquí está el enlace."}, &edited)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Gracias, aquí está el enlace.", edited.EditedText.String)

	// Publish, then a second publish conflicts.
	var published models.Response
	status = env.call(t, http.MethodPost, fmt.Sprintf("/v1/responses/%d/publish", draft.ID), nil, &published)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusPublished, published.Status)
	assert.Equal(t, "reply1", published.RemoteReplyID.String)

	status = env.call(t, http.MethodPost, fmt.Sprintf("/v1/responses/%d/publish", draft.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Rejecting works from any status, published included.
	var rejected models.Response
	status = env.call(t, http.MethodPost, fmt.Sprintf("/v1/responses/%d/reject", draft.ID), nil, &rejected)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusRejected, rejected.Status)
}

func TestLifecycle_UnknownResponse(t *testing.T) {
	env := newAPIEnv(t)

	status := env.call(t, http.MethodPost, "/v1/responses/9999/publish", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatsRoute(t *testing.T) {
	env := newAPIEnv(t)
	env.seedComment(t)

	var stats store.Stats
	status := env.call(t, http.MethodGet, "/v1/reddit/stats", nil, &stats)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), stats.TotalItems)
	assert.Equal(t, int64(1), stats.TotalComments)
}

func TestCreatePostRoute(t *testing.T) {
	env := newAPIEnv(t)

	var item models.Item
	status := env.call(t, http.MethodPost, "/v1/reddit/posts", map[string]string{
		"subreddit": "golang",
		"title":     "Vacante Go",
		"content":   "Detalles dentro.",
	}, &item)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, item.IsOwnPost)
	assert.Equal(t, "own1", item.RemoteID)

	// Missing title.
	status = env.call(t, http.MethodPost, "/v1/reddit/posts", map[string]string{
		"subreddit": "golang",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGenerateJobPostRoute(t *testing.T) {
	env := newAPIEnv(t)

	// Backend down: the canned job post comes back instead of an error.
	var draft genai.PostDraft
	status := env.call(t, http.MethodPost, "/v1/generate/job-post", map[string]any{
		"job_title":    "Desarrollador Go",
		"company_name": "ACM",
	}, &draft)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, draft.Title, "Desarrollador Go en ACM")

	status = env.call(t, http.MethodPost, "/v1/generate/job-post", map[string]any{
		"job_title": "Desarrollador Go",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
