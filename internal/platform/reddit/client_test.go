package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a client at a fake API and pre-fills the HTTP
// client so no token is fetched.
func newTestClient(srv *httptest.Server) *Client {
	c := New(Config{Username: "botaccount", UserAgent: "test/1.0"})
	c.baseURL = srv.URL
	c.http = srv.Client()
	return c
}

func TestListItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/r/golang/new", r.URL.Path)
		require.Equal(t, "25", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"children": []map[string]any{
					{"kind": "t3", "data": map[string]any{
						"id":           "abc",
						"title":        "Oferta de empleo",
						"selftext":     "Detalles",
						"url":          "https://example.com",
						"permalink":    "/r/golang/comments/abc/oferta/",
						"author":       "someone",
						"num_comments": 7,
						"created_utc":  1748779200.0,
					}},
					{"kind": "t5", "data": map[string]any{"id": "ignored"}},
				},
			},
		})
	}))
	defer srv.Close()

	items, err := newTestClient(srv).ListItems(context.Background(), "golang", 25)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "abc", items[0].RemoteID)
	assert.Equal(t, "Oferta de empleo", items[0].Title)
	assert.Equal(t, "https://reddit.com/r/golang/comments/abc/oferta/", items[0].Permalink)
	assert.Equal(t, int64(7), items[0].CommentCount)
	assert.Equal(t, time.Unix(1748779200, 0).UTC(), items[0].PublishedAt)
}

func TestListComments_FlattensAndSkipsOwn(t *testing.T) {
	nested := map[string]any{
		"kind": "t1",
		"data": map[string]any{
			"id": "c2", "author": "replier", "body": "a nested reply",
			"parent_id": "t1_c1", "ups": 2, "created_utc": 1748782800.0,
		},
	}
	nestedRaw, err := json.Marshal(map[string]any{
		"data": map[string]any{"children": []any{nested}},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comments/abc", r.URL.Path)

		json.NewEncoder(w).Encode([]map[string]any{
			{"data": map[string]any{"children": []any{}}}, // listing 0: the post
			{"data": map[string]any{"children": []any{
				map[string]any{"kind": "t1", "data": map[string]any{
					"id": "c1", "author": "curious", "body": "how do I apply?",
					"parent_id": "t3_abc", "ups": 5, "created_utc": 1748781000.0,
					"replies": json.RawMessage(nestedRaw),
				}},
				map[string]any{"kind": "t1", "data": map[string]any{
					"id": "c3", "author": "botaccount", "body": "our own reply",
					"parent_id": "t3_abc", "created_utc": 1748781600.0,
				}},
			}}},
		})
	}))
	defer srv.Close()

	comments, err := newTestClient(srv).ListComments(context.Background(), "abc", 100)
	require.NoError(t, err)
	require.Len(t, comments, 2, "bot's own comment must be skipped")

	assert.Equal(t, "c1", comments[0].RemoteID)
	assert.False(t, comments[0].IsReply)
	assert.Empty(t, comments[0].ParentRemoteID, "top-level comments carry no parent linkage")
	assert.Equal(t, "c2", comments[1].RemoteID)
	assert.True(t, comments[1].IsReply)
	assert.Equal(t, "c1", comments[1].ParentRemoteID, "nested replies link by bare comment id")
}

func TestReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/comment", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "t1_c1", r.PostForm.Get("thing_id"))
		require.Equal(t, "¡Gracias!", r.PostForm.Get("text"))

		json.NewEncoder(w).Encode(map[string]any{
			"json": map[string]any{
				"errors": []any{},
				"data": map[string]any{
					"things": []map[string]any{
						{"kind": "t1", "data": map[string]any{"id": "newreply"}},
					},
				},
			},
		})
	}))
	defer srv.Close()

	id, err := newTestClient(srv).Reply(context.Background(), "c1", "¡Gracias!")
	require.NoError(t, err)
	assert.Equal(t, "newreply", id)
}

func TestReply_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"json": map[string]any{
				"errors": [][]any{{"RATELIMIT", "you are doing that too much", "ratelimit"}},
			},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Reply(context.Background(), "c1", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATELIMIT")
}

func TestEditItem_RequiresOwnTextPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/info", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"children": []map[string]any{
					{"kind": "t3", "data": map[string]any{
						"id": "abc", "author": "someoneelse", "is_self": true,
					}},
				},
			},
		})
	}))
	defer srv.Close()

	err := newTestClient(srv).EditItem(context.Background(), "abc", "nuevo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the author")
}

func TestDeleteComment_OwnVersusForeign(t *testing.T) {
	var endpoints []string
	author := "botaccount"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/info" {
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"children": []map[string]any{
						{"kind": "t1", "data": map[string]any{"id": "c1", "author": author}},
					},
				},
			})
			return
		}
		endpoints = append(endpoints, r.URL.Path)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	client := newTestClient(srv)

	// Own comment: a true delete.
	require.NoError(t, client.DeleteComment(context.Background(), "c1"))

	// Someone else's comment: a moderator removal.
	author = "stranger"
	require.NoError(t, client.DeleteComment(context.Background(), "c1"))

	assert.Equal(t, []string{"/api/del", "/api/remove"}, endpoints)
}

func TestDo_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListItems(context.Background(), "golang", 25)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/me", r.URL.Path)
		require.Equal(t, "test/1.0", r.Header.Get("User-Agent"))
		json.NewEncoder(w).Encode(map[string]any{"name": "botaccount"})
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv).TestConnection(context.Background()))
}
