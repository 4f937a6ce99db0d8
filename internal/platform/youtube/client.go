// Package youtube implements the platform.Client contract against the
// YouTube Data API v3 using an OAuth refresh token.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"replydeck/manager/internal/platform"
)

const (
	apiURL   = "https://www.googleapis.com/youtube/v3"
	tokenURL = "https://oauth2.googleapis.com/token"

	requestTimeout = 15 * time.Second
	pageSize       = 100 // API maximum per commentThreads request
)

// Config carries the OAuth credentials of the channel owner account.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Client talks to the YouTube Data API on behalf of one channel.
type Client struct {
	cfg     Config
	baseURL string

	once sync.Once
	http *http.Client
}

var _ platform.Client = (*Client)(nil)

// New creates a client. The access token is minted from the refresh token
// on first use and renewed automatically by the oauth2 transport.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, baseURL: apiURL}
}

func (c *Client) httpClient() *http.Client {
	c.once.Do(func() {
		conf := &oauth2.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		}
		ts := conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: c.cfg.RefreshToken})
		c.http = oauth2.NewClient(context.Background(), ts)
		c.http.Timeout = requestTimeout
	})
	return c.http
}

// apiError lets callers distinguish comment-disabled videos (403) from
// real failures.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("youtube api status %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, resource string, query url.Values, payload, out any) error {
	u := c.baseURL + resource
	if query != nil {
		u += "?" + query.Encode()
	}

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("youtube request %s %s failed: %w", method, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(buf.String())}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("youtube response decode failed: %w", err)
	}
	return nil
}

// --- wire format ---

const timeLayout = "2006-01-02T15:04:05Z"

type snippet struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	PublishedAt          string `json:"publishedAt"`
	UpdatedAt            string `json:"updatedAt"`
	ChannelTitle         string `json:"channelTitle"`
	TextDisplay          string `json:"textDisplay"`
	AuthorDisplayName    string `json:"authorDisplayName"`
	LikeCount            int64  `json:"likeCount"`
	TextOriginal         string `json:"textOriginal,omitempty"`
	ParentID             string `json:"parentId,omitempty"`
	AuthorChannelID      struct {
		Value string `json:"value"`
	} `json:"authorChannelId"`
	Thumbnails struct {
		Medium struct {
			URL string `json:"url"`
		} `json:"medium"`
	} `json:"thumbnails"`
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

// --- platform.Client ---

// uploadsPlaylistID resolves the uploads playlist of the authenticated
// channel, or of an explicit channel id passed as container.
func (c *Client) uploadsPlaylistID(ctx context.Context, container string) (string, error) {
	q := url.Values{}
	q.Set("part", "contentDetails")
	if container == "" {
		q.Set("mine", "true")
	} else {
		q.Set("id", container)
	}

	var res struct {
		Items []struct {
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/channels", q, nil, &res); err != nil {
		return "", err
	}
	if len(res.Items) == 0 {
		return "", fmt.Errorf("youtube channel not found")
	}
	return res.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// ListItems fetches the channel's most recent uploads with their stats.
// container is a channel id, or empty for the authenticated channel.
func (c *Client) ListItems(ctx context.Context, container string, limit int) ([]platform.ItemData, error) {
	playlistID, err := c.uploadsPlaylistID(ctx, container)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("part", "contentDetails")
	q.Set("playlistId", playlistID)
	q.Set("maxResults", strconv.Itoa(limit))

	var playlist struct {
		Items []struct {
			ContentDetails struct {
				VideoID string `json:"videoId"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/playlistItems", q, nil, &playlist); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(playlist.Items))
	for _, it := range playlist.Items {
		ids = append(ids, it.ContentDetails.VideoID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vq := url.Values{}
	vq.Set("part", "snippet,statistics")
	vq.Set("id", strings.Join(ids, ","))

	var videos struct {
		Items []struct {
			ID         string  `json:"id"`
			Snippet    snippet `json:"snippet"`
			Statistics struct {
				ViewCount    string `json:"viewCount"`
				CommentCount string `json:"commentCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/videos", vq, nil, &videos); err != nil {
		return nil, err
	}

	items := make([]platform.ItemData, 0, len(videos.Items))
	for _, v := range videos.Items {
		viewCount, _ := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)
		commentCount, _ := strconv.ParseInt(v.Statistics.CommentCount, 10, 64)
		items = append(items, platform.ItemData{
			RemoteID:     v.ID,
			Title:        v.Snippet.Title,
			Description:  v.Snippet.Description,
			URL:          "https://www.youtube.com/watch?v=" + v.ID,
			Container:    v.Snippet.ChannelTitle,
			ThumbnailURL: v.Snippet.Thumbnails.Medium.URL,
			ViewCount:    viewCount,
			CommentCount: commentCount,
			PublishedAt:  parseTime(v.Snippet.PublishedAt),
		})
	}
	return items, nil
}

// ListComments fetches a video's comment threads newest first, flattening
// replies with is_reply set. A comment-disabled video (403) surfaces as an
// empty list rather than a failure.
func (c *Client) ListComments(ctx context.Context, itemRemoteID string, limit int) ([]platform.CommentData, error) {
	var comments []platform.CommentData
	pageToken := ""

	for len(comments) < limit {
		q := url.Values{}
		q.Set("part", "snippet,replies")
		q.Set("videoId", itemRemoteID)
		q.Set("maxResults", strconv.Itoa(min(limit, pageSize)))
		q.Set("textFormat", "plainText")
		q.Set("order", "time")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var res struct {
			NextPageToken string `json:"nextPageToken"`
			Items         []struct {
				Snippet struct {
					TopLevelComment struct {
						ID      string  `json:"id"`
						Snippet snippet `json:"snippet"`
					} `json:"topLevelComment"`
				} `json:"snippet"`
				Replies struct {
					Comments []struct {
						ID      string  `json:"id"`
						Snippet snippet `json:"snippet"`
					} `json:"comments"`
				} `json:"replies"`
			} `json:"items"`
		}

		if err := c.do(ctx, http.MethodGet, "/commentThreads", q, nil, &res); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.status == http.StatusForbidden {
				log.Warn().Str("video_id", itemRemoteID).Msg("Comments are disabled for this video")
				return nil, nil
			}
			return nil, err
		}

		for _, item := range res.Items {
			top := item.Snippet.TopLevelComment
			comments = append(comments, commentFrom(top.ID, top.Snippet, "", false))
			for _, reply := range item.Replies.Comments {
				comments = append(comments, commentFrom(reply.ID, reply.Snippet, top.ID, true))
			}
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func commentFrom(id string, s snippet, parentID string, isReply bool) platform.CommentData {
	return platform.CommentData{
		RemoteID:        id,
		Author:          s.AuthorDisplayName,
		AuthorChannelID: s.AuthorChannelID.Value,
		Content:         s.TextDisplay,
		ParentRemoteID:  parentID,
		LikeCount:       s.LikeCount,
		IsReply:         isReply,
		PublishedAt:     parseTime(s.PublishedAt),
	}
}

// Reply inserts a reply under a comment (top-level or nested) and returns
// the new comment's id.
func (c *Client) Reply(ctx context.Context, commentRemoteID, text string) (string, error) {
	q := url.Values{}
	q.Set("part", "snippet")

	payload := map[string]any{
		"snippet": map[string]any{
			"parentId":     commentRemoteID,
			"textOriginal": text,
		},
	}

	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/comments", q, payload, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", fmt.Errorf("youtube reply returned no id")
	}
	return res.ID, nil
}

// CreateItem is not supported: videos cannot be created through this API.
func (c *Client) CreateItem(ctx context.Context, container, title, body string, kind platform.PostKind, attachment string) (*platform.ItemData, error) {
	return nil, platform.ErrUnsupported
}

// EditItem is not supported for videos.
func (c *Client) EditItem(ctx context.Context, itemRemoteID, newBody string) error {
	return platform.ErrUnsupported
}

// DeleteItem is not supported for videos.
func (c *Client) DeleteItem(ctx context.Context, itemRemoteID string) error {
	return platform.ErrUnsupported
}

// DeleteComment removes a comment owned by the authenticated channel.
func (c *Client) DeleteComment(ctx context.Context, commentRemoteID string) error {
	q := url.Values{}
	q.Set("id", commentRemoteID)
	return c.do(ctx, http.MethodDelete, "/comments", q, nil, nil)
}

// TestConnection probes the authenticated channel.
func (c *Client) TestConnection(ctx context.Context) error {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("mine", "true")

	var res struct {
		Items []struct {
			Snippet snippet `json:"snippet"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/channels", q, nil, &res); err != nil {
		return err
	}
	if len(res.Items) == 0 {
		return fmt.Errorf("youtube identity probe returned no channel")
	}
	log.Info().Str("channel", res.Items[0].Snippet.Title).Msg("YouTube connection successful")
	return nil
}
