package workflow

import (
	"context"
	"encoding/json"
	"errors"
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
)

// fakeClient is an in-memory platform.Client for tests.
type fakeClient struct {
	items    []platform.ItemData
	comments []platform.CommentData

	listItemsErr    error
	listCommentsErr error

	replyID    string
	replyErr   error
	replyCalls int
	lastReply  string

	created         *platform.ItemData
	createErr       error
	editErr         error
	deletedItems    []string
	deletedComments []string
}

var _ platform.Client = (*fakeClient)(nil)

func (f *fakeClient) ListItems(ctx context.Context, container string, limit int) ([]platform.ItemData, error) {
	if f.listItemsErr != nil {
		return nil, f.listItemsErr
	}
	return f.items, nil
}

func (f *fakeClient) ListComments(ctx context.Context, itemRemoteID string, limit int) ([]platform.CommentData, error) {
	if f.listCommentsErr != nil {
		return nil, f.listCommentsErr
	}
	return f.comments, nil
}

func (f *fakeClient) Reply(ctx context.Context, commentRemoteID, text string) (string, error) {
	f.replyCalls++
	f.lastReply = text
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return f.replyID, nil
}

func (f *fakeClient) CreateItem(ctx context.Context, container, title, body string, kind platform.PostKind, attachment string) (*platform.ItemData, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.created != nil {
		return f.created, nil
	}
	return &platform.ItemData{
		RemoteID:    "created1",
		Title:       title,
		Description: body,
		Container:   container,
		Author:      "botaccount",
		PublishedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeClient) EditItem(ctx context.Context, itemRemoteID, newBody string) error {
	return f.editErr
}

func (f *fakeClient) DeleteItem(ctx context.Context, itemRemoteID string) error {
	f.deletedItems = append(f.deletedItems, itemRemoteID)
	return nil
}

func (f *fakeClient) DeleteComment(ctx context.Context, commentRemoteID string) error {
	f.deletedComments = append(f.deletedComments, commentRemoteID)
	return nil
}

func (f *fakeClient) TestConnection(ctx context.Context) error { return nil }

type testEnv struct {
	wf   *Workflow
	st   *store.Store
	op   *models.Operator
	fake *fakeClient
}

// newTestEnv builds a workflow over a throwaway database. genURL points at
// the generation backend; an unreachable address makes every draft use the
// deterministic fallback sentences.
func newTestEnv(t *testing.T, genURL string) *testEnv {
	t.Helper()

	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	op, err := st.CreateOperator(context.Background(), "alice", "key-alice")
	require.NoError(t, err)

	fake := &fakeClient{
		items: []platform.ItemData{{
			RemoteID:     "abc",
			Title:        "Oferta de empleo",
			URL:          "https://reddit.com/r/golang/comments/abc",
			Container:    "golang",
			Author:       "someone",
			ViewCount:    10,
			CommentCount: 1,
			PublishedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}},
		comments: []platform.CommentData{{
			RemoteID:    "c1",
			Author:      "curious",
			Content:     "This is great, how do I apply?",
			PublishedAt: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
		}},
		replyID: "reply1",
	}

	gen := genai.NewGenerator(genURL, "llama3")
	factory := func(p models.Platform) (platform.Client, error) { return fake, nil }

	return &testEnv{
		wf:   New(st, factory, gen, 25, 100),
		st:   st,
		op:   op,
		fake: fake,
	}
}

// echoBackend returns a generation backend that always produces output.
func echoBackend(t *testing.T, output string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": output})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// seed syncs the fake's single item and comment and returns both rows.
func (e *testEnv) seed(t *testing.T) (models.Item, models.Comment) {
	t.Helper()
	ctx := context.Background()

	_, err := e.wf.SyncItems(ctx, e.op, models.PlatformReddit, "golang")
	require.NoError(t, err)

	items, err := e.wf.ListItems(ctx, e.op, models.PlatformReddit, 10, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = e.wf.SyncComments(ctx, e.op, items[0].ID)
	require.NoError(t, err)

	comments, err := e.wf.ListComments(ctx, e.op, items[0].ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	return items[0], comments[0].Comment
}

// --- sync ---

func TestSyncItems_InsertsOnceAndRefreshesMetrics(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	ctx := context.Background()

	first, err := env.wf.SyncItems(ctx, env.op, models.PlatformReddit, "golang")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Fetched)
	assert.Equal(t, 1, first.Created)

	// Same remote id again: no new row, metrics refreshed, title untouched.
	env.fake.items[0].ViewCount = 99
	env.fake.items[0].Title = "Changed remotely"

	second, err := env.wf.SyncItems(ctx, env.op, models.PlatformReddit, "golang")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Fetched)
	assert.Equal(t, 0, second.Created)

	items, err := env.wf.ListItems(ctx, env.op, models.PlatformReddit, 10, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(99), items[0].ViewCount)
	assert.Equal(t, "Oferta de empleo", items[0].Title)
}

func TestSyncItems_FetchErrorYieldsEmptyPass(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	env.fake.listItemsErr = errors.New("rate limited")

	result, err := env.wf.SyncItems(context.Background(), env.op, models.PlatformReddit, "golang")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, 0, result.Created)
}

func TestSyncComments_IsIdempotent(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	item, _ := env.seed(t)

	again, err := env.wf.SyncComments(context.Background(), env.op, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Fetched)
	assert.Equal(t, 0, again.Created)
}

func TestSyncComments_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	item, _ := env.seed(t)

	other, err := env.st.CreateOperator(context.Background(), "mallory", "key-mallory")
	require.NoError(t, err)

	_, err = env.wf.SyncComments(context.Background(), other, item.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.wf.SyncComments(context.Background(), env.op, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListItems_CursorPagination(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	ctx := context.Background()

	env.fake.items = nil
	for i := 0; i < 3; i++ {
		env.fake.items = append(env.fake.items, platform.ItemData{
			RemoteID:    fmt.Sprintf("post%d", i),
			Title:       fmt.Sprintf("Post %d", i),
			Container:   "golang",
			PublishedAt: time.Date(2025, 6, 1+i, 12, 0, 0, 0, time.UTC),
		})
	}
	_, err := env.wf.SyncItems(ctx, env.op, models.PlatformReddit, "golang")
	require.NoError(t, err)

	page1, err := env.wf.ListItems(ctx, env.op, models.PlatformReddit, 2, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "post2", page1[0].RemoteID) // newest first
	assert.Equal(t, "post1", page1[1].RemoteID)

	last := page1[len(page1)-1]
	page2, err := env.wf.ListItems(ctx, env.op, models.PlatformReddit, 2, last.PublishedAt, last.ID)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "post0", page2[0].RemoteID)
}

// --- drafting ---

func TestGenerateResponse_CreatesPendingDraft(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "Aquí tienes los detalles para aplicar."))
	_, comment := env.seed(t)

	resp, err := env.wf.GenerateResponse(context.Background(), env.op, comment.ID, models.ToneFormal, "")
	require.NoError(t, err)

	assert.Equal(t, "Aquí tienes los detalles para aplicar.", resp.GeneratedText)
	assert.Equal(t, models.ToneFormal, resp.Tone)
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.False(t, resp.EditedText.Valid)
	assert.False(t, resp.RemoteReplyID.Valid)
}

func TestGenerateResponse_UnknownToneFallsBackToFriendly(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "hola"))
	_, comment := env.seed(t)

	resp, err := env.wf.GenerateResponse(context.Background(), env.op, comment.ID, models.Tone("sarcastic"), "")
	require.NoError(t, err)
	assert.Equal(t, models.ToneFriendly, resp.Tone)
}

func TestGenerateResponse_BackendDownUsesFallbackSentence(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	_, comment := env.seed(t)

	resp, err := env.wf.GenerateResponse(context.Background(), env.op, comment.ID, models.ToneFormal, "")
	require.NoError(t, err)
	assert.Equal(t,
		"Gracias por su comentario. Hemos tomado nota de su mensaje y le responderemos a la brevedad.",
		resp.GeneratedText)
	assert.Equal(t, models.StatusPending, resp.Status)
}

func TestGenerateResponse_OverwriteResetsDraft(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "primera versión"))
	_, comment := env.seed(t)
	ctx := context.Background()

	first, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFormal, "")
	require.NoError(t, err)

	_, err = env.wf.EditResponse(ctx, env.op, first.ID, "texto editado")
	require.NoError(t, err)
	_, err = env.wf.RejectResponse(ctx, env.op, first.ID)
	require.NoError(t, err)

	second, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneInformative, "")
	require.NoError(t, err)

	// Same row, fresh lineage.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.StatusPending, second.Status)
	assert.Equal(t, models.ToneInformative, second.Tone)
	assert.False(t, second.EditedText.Valid)
	assert.False(t, second.RemoteReplyID.Valid)
	assert.False(t, second.PublishedAt.Valid)
}

// --- lifecycle ---

func TestEditResponse(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)

	edited, err := env.wf.EditResponse(ctx, env.op, draft.ID, "  Mi respuesta pulida.  ")
	require.NoError(t, err)
	assert.Equal(t, "Mi respuesta pulida.", edited.EditedText.String)
	assert.Equal(t, "Mi respuesta pulida.", edited.FinalText())
	assert.Equal(t, models.StatusPending, edited.Status)

	_, err = env.wf.EditResponse(ctx, env.op, draft.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPublishResponse_UsesEditedText(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)
	_, err = env.wf.EditResponse(ctx, env.op, draft.ID, "versión final")
	require.NoError(t, err)

	published, err := env.wf.PublishResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPublished, published.Status)
	assert.Equal(t, "reply1", published.RemoteReplyID.String)
	assert.True(t, published.PublishedAt.Valid)
	assert.Equal(t, 1, env.fake.replyCalls)
	assert.Equal(t, "versión final", env.fake.lastReply)
}

func TestPublishResponse_SecondPublishConflicts(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)

	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)

	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, env.fake.replyCalls, "remote reply must be sent exactly once")
}

func TestPublishResponse_RemoteFailureLeavesPending(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)

	env.fake.replyErr = errors.New("503 from platform")
	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	assert.ErrorIs(t, err, ErrRemote)

	// Draft is untouched and publishable once the platform recovers.
	env.fake.replyErr = nil
	published, err := env.wf.PublishResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	assert.Equal(t, 2, env.fake.replyCalls)
}

func TestRejectResponse(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)

	rejected, err := env.wf.RejectResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	// Rejecting again is a no-op.
	_, err = env.wf.RejectResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)

	// Editing a rejected draft is not allowed.
	_, err = env.wf.EditResponse(ctx, env.op, draft.ID, "tarde")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRejectResponse_FromPublished(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)
	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)

	rejected, err := env.wf.RejectResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	// The reply already went out remotely; the record of it is kept.
	assert.Equal(t, "reply1", rejected.RemoteReplyID.String)
	assert.True(t, rejected.PublishedAt.Valid)

	// The lineage already produced a remote reply, so it cannot publish
	// again; only a fresh generate (which clears the remote id) can.
	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, env.fake.replyCalls)
}

func TestLifecycle_CrossOperatorForbidden(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)

	other, err := env.st.CreateOperator(ctx, "mallory", "key-mallory")
	require.NoError(t, err)

	_, err = env.wf.GenerateResponse(ctx, other, comment.ID, models.ToneFriendly, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.wf.EditResponse(ctx, other, draft.ID, "mío ahora")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.wf.PublishResponse(ctx, other, draft.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.wf.RejectResponse(ctx, other, draft.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = env.wf.DeleteComment(ctx, other, comment.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteComment_RemovesPublishedReplyToo(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	item, comment := env.seed(t)
	ctx := context.Background()

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)
	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)

	require.NoError(t, env.wf.DeleteComment(ctx, env.op, comment.ID))

	// Bot reply first, then the comment itself.
	assert.Equal(t, []string{"reply1", "c1"}, env.fake.deletedComments)

	comments, err := env.wf.ListComments(ctx, env.op, item.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

// --- posting ---

func TestCreatePost(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	ctx := context.Background()

	item, err := env.wf.CreatePost(ctx, env.op, CreatePostInput{
		Platform:  models.PlatformReddit,
		Container: "golang",
		Title:     "  Vacante: Desarrollador Go  ",
		Body:      "Detalles dentro.",
		Kind:      platform.KindText,
	})
	require.NoError(t, err)

	assert.True(t, item.IsOwnPost)
	assert.Equal(t, "created1", item.RemoteID)
	assert.Equal(t, "Vacante: Desarrollador Go", item.Title)
}

func TestCreatePost_Validation(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	ctx := context.Background()

	cases := []CreatePostInput{
		{Platform: "myspace", Container: "c", Title: "t", Kind: platform.KindText},
		{Platform: models.PlatformReddit, Title: "t", Kind: platform.KindText},
		{Platform: models.PlatformReddit, Container: "c", Title: "   ", Kind: platform.KindText},
		{Platform: models.PlatformReddit, Container: "c", Title: "t", Kind: "poll"},
		{Platform: models.PlatformReddit, Container: "c", Title: "t", Kind: platform.KindImage},
	}
	for _, in := range cases {
		_, err := env.wf.CreatePost(ctx, env.op, in)
		assert.ErrorIs(t, err, ErrValidation, "input %+v", in)
	}
}

func TestCreatePost_RemoteFailure(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	env.fake.createErr = errors.New("ratelimit")

	_, err := env.wf.CreatePost(context.Background(), env.op, CreatePostInput{
		Platform:  models.PlatformReddit,
		Container: "golang",
		Title:     "hola",
		Kind:      platform.KindText,
	})
	assert.ErrorIs(t, err, ErrRemote)
}

func TestEditAndDeletePost_OwnPostsOnly(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	ctx := context.Background()

	// A synced (not own) item cannot be edited or deleted.
	synced, _ := env.seed(t)
	_, err := env.wf.EditPost(ctx, env.op, synced.ID, "nuevo cuerpo")
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = env.wf.DeletePost(ctx, env.op, synced.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Editing requires the post author to match the operator's username.
	env.fake.created = &platform.ItemData{
		RemoteID:    "created1",
		Title:       "propio",
		Description: "v1",
		Container:   "golang",
		Author:      env.op.Username,
		PublishedAt: time.Now().UTC(),
	}
	own, err := env.wf.CreatePost(ctx, env.op, CreatePostInput{
		Platform:  models.PlatformReddit,
		Container: "golang",
		Title:     "propio",
		Body:      "v1",
		Kind:      platform.KindText,
	})
	require.NoError(t, err)

	edited, err := env.wf.EditPost(ctx, env.op, own.ID, "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", edited.Description)

	require.NoError(t, env.wf.DeletePost(ctx, env.op, edited.ID))
	assert.Equal(t, []string{"created1"}, env.fake.deletedItems)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, echoBackend(t, "borrador"))
	_, comment := env.seed(t)
	ctx := context.Background()

	stats, err := env.wf.Stats(ctx, env.op, models.PlatformReddit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalItems)
	assert.Equal(t, int64(1), stats.TotalComments)
	assert.Equal(t, int64(1), stats.UnreadComments)
	assert.Equal(t, int64(0), stats.PendingResponses)

	draft, err := env.wf.GenerateResponse(ctx, env.op, comment.ID, models.ToneFriendly, "")
	require.NoError(t, err)

	stats, err = env.wf.Stats(ctx, env.op, models.PlatformReddit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingResponses)
	assert.InDelta(t, 100.0, stats.ResponseRate, 0.001)

	_, err = env.wf.PublishResponse(ctx, env.op, draft.ID)
	require.NoError(t, err)

	stats, err = env.wf.Stats(ctx, env.op, models.PlatformReddit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingResponses)
	assert.Equal(t, int64(1), stats.PublishedResponses)
	assert.Equal(t, int64(0), stats.UnreadComments)
}
