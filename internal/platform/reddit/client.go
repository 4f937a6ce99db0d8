// Package reddit implements the platform.Client contract against the
// Reddit OAuth API using a script-app password grant.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"replydeck/manager/internal/platform"
)

const (
	authURL = "https://www.reddit.com/api/v1/access_token"
	apiURL  = "https://oauth.reddit.com"

	requestTimeout = 15 * time.Second
)

// Config carries the script-app credentials for a bot account.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Client talks to the Reddit API on behalf of one bot account.
type Client struct {
	cfg     Config
	baseURL string

	mu   sync.Mutex
	http *http.Client
}

var _ platform.Client = (*Client)(nil)

// New creates a client. The OAuth token is fetched lazily on first use.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, baseURL: apiURL}
}

// httpClient returns an authenticated HTTP client, fetching a password-grant
// token on first use. Script-app tokens expire after an hour, so callers
// that see a 401 drop the client and re-acquire.
func (c *Client) httpClient(ctx context.Context) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http != nil {
		return c.http, nil
	}

	conf := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  authURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	tok, err := conf.PasswordCredentialsToken(ctx, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("reddit token request failed: %w", err)
	}

	c.http = oauth2.NewClient(context.Background(), conf.TokenSource(context.Background(), tok))
	c.http.Timeout = requestTimeout
	return c.http, nil
}

// dropClient forgets the cached HTTP client so the next call re-authenticates.
func (c *Client) dropClient() {
	c.mu.Lock()
	c.http = nil
	c.mu.Unlock()
}

// do performs one API request and decodes the JSON response into out.
// A 401 triggers a single token refresh and retry.
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, out any) error {
	return c.doOnce(ctx, method, path, query, form, out, true)
}

func (c *Client) doOnce(ctx context.Context, method, path string, query, form url.Values, out any, allowRetry bool) error {
	httpClient, err := c.httpClient(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}

	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reddit request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRetry {
		log.Warn().Str("path", path).Msg("Reddit token expired, refreshing and retrying")
		c.dropClient()
		return c.doOnce(ctx, method, path, query, form, out, false)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit request %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reddit response decode failed: %w", err)
	}
	return nil
}

// --- wire format ---

type listing struct {
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Selftext    string          `json:"selftext"`
	Body        string          `json:"body"`
	URL         string          `json:"url"`
	Permalink   string          `json:"permalink"`
	Subreddit   string          `json:"subreddit"`
	Author      string          `json:"author"`
	ParentID    string          `json:"parent_id"`
	NumComments int64           `json:"num_comments"`
	Ups         int64           `json:"ups"`
	IsSelf      bool            `json:"is_self"`
	CreatedUTC  float64         `json:"created_utc"`
	Replies     json.RawMessage `json:"replies"`
}

// apiResult is the envelope returned by api_type=json write endpoints.
type apiResult struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID     string  `json:"id"`
			Name   string  `json:"name"`
			URL    string  `json:"url"`
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func (r *apiResult) err() error {
	if len(r.JSON.Errors) > 0 {
		return fmt.Errorf("reddit api error: %v", r.JSON.Errors[0])
	}
	return nil
}

func permalinkURL(permalink string) string {
	return "https://reddit.com" + permalink
}

func fromUnix(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}

// --- platform.Client ---

// ListItems fetches the newest posts in a subreddit.
func (c *Client) ListItems(ctx context.Context, container string, limit int) ([]platform.ItemData, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("raw_json", "1")

	var lst listing
	if err := c.do(ctx, http.MethodGet, "/r/"+container+"/new", q, nil, &lst); err != nil {
		return nil, err
	}

	items := make([]platform.ItemData, 0, len(lst.Data.Children))
	for _, ch := range lst.Data.Children {
		if ch.Kind != "t3" {
			continue
		}
		d := ch.Data
		items = append(items, platform.ItemData{
			RemoteID:     d.ID,
			Title:        d.Title,
			Description:  d.Selftext,
			URL:          d.URL,
			Permalink:    permalinkURL(d.Permalink),
			Container:    container,
			Author:       d.Author,
			CommentCount: d.NumComments,
			PublishedAt:  fromUnix(d.CreatedUTC),
		})
	}
	return items, nil
}

// ListComments fetches the comment tree of a post and flattens it,
// preserving parent linkage. Comments authored by the bot account are
// excluded at fetch time.
func (c *Client) ListComments(ctx context.Context, itemRemoteID string, limit int) ([]platform.CommentData, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("raw_json", "1")

	var listings []listing
	if err := c.do(ctx, http.MethodGet, "/comments/"+itemRemoteID, q, nil, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var comments []platform.CommentData
	c.flatten(listings[1].Data.Children, limit, &comments)
	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func (c *Client) flatten(children []thing, limit int, out *[]platform.CommentData) {
	for _, ch := range children {
		if len(*out) >= limit {
			return
		}
		if ch.Kind != "t1" {
			continue
		}
		d := ch.Data
		if d.Author != c.cfg.Username {
			// The parent fullname is t3_<post> for top-level comments and
			// t1_<comment> for nested replies; linkage keeps the bare
			// comment id so it joins against stored comments.
			parentID := ""
			isReply := strings.HasPrefix(d.ParentID, "t1_")
			if isReply {
				parentID = strings.TrimPrefix(d.ParentID, "t1_")
			}
			*out = append(*out, platform.CommentData{
				RemoteID:       d.ID,
				Author:         d.Author,
				Content:        d.Body,
				Permalink:      permalinkURL(d.Permalink),
				ParentRemoteID: parentID,
				LikeCount:      d.Ups,
				IsReply:        isReply,
				PublishedAt:    fromUnix(d.CreatedUTC),
			})
		}

		// Replies is the empty string when there are none.
		if len(d.Replies) > 2 {
			var nested listing
			if err := json.Unmarshal(d.Replies, &nested); err == nil {
				c.flatten(nested.Data.Children, limit, out)
			}
		}
	}
}

// Reply posts a reply to a comment and returns the new comment's id.
func (c *Client) Reply(ctx context.Context, commentRemoteID, text string) (string, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", "t1_"+commentRemoteID)
	form.Set("text", text)

	var res apiResult
	if err := c.do(ctx, http.MethodPost, "/api/comment", nil, form, &res); err != nil {
		return "", err
	}
	if err := res.err(); err != nil {
		return "", err
	}
	if len(res.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("reddit reply returned no comment")
	}
	return res.JSON.Data.Things[0].Data.ID, nil
}

// CreateItem submits a new post to a subreddit.
func (c *Client) CreateItem(ctx context.Context, container, title, body string, kind platform.PostKind, attachment string) (*platform.ItemData, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", container)
	form.Set("title", title)

	switch kind {
	case platform.KindText:
		form.Set("kind", "self")
		form.Set("text", body)
	case platform.KindLink:
		form.Set("kind", "link")
		form.Set("url", body)
	case platform.KindImage:
		form.Set("kind", "image")
		form.Set("url", attachment)
	default:
		return nil, fmt.Errorf("%w: post kind %q", platform.ErrUnsupported, kind)
	}

	var res apiResult
	if err := c.do(ctx, http.MethodPost, "/api/submit", nil, form, &res); err != nil {
		return nil, err
	}
	if err := res.err(); err != nil {
		return nil, err
	}

	return &platform.ItemData{
		RemoteID:    res.JSON.Data.ID,
		Title:       title,
		Description: body,
		URL:         res.JSON.Data.URL,
		Permalink:   res.JSON.Data.URL,
		Container:   container,
		Author:      c.cfg.Username,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// info fetches a single thing by fullname.
func (c *Client) info(ctx context.Context, fullname string) (*thingData, error) {
	q := url.Values{}
	q.Set("id", fullname)
	q.Set("raw_json", "1")

	var lst listing
	if err := c.do(ctx, http.MethodGet, "/api/info", q, nil, &lst); err != nil {
		return nil, err
	}
	if len(lst.Data.Children) == 0 {
		return nil, fmt.Errorf("reddit thing %s not found", fullname)
	}
	return &lst.Data.Children[0].Data, nil
}

// EditItem replaces the selftext of a text post owned by the bot account.
func (c *Client) EditItem(ctx context.Context, itemRemoteID, newBody string) error {
	d, err := c.info(ctx, "t3_"+itemRemoteID)
	if err != nil {
		return err
	}
	if d.Author != c.cfg.Username {
		return fmt.Errorf("cannot edit post %s: not the author", itemRemoteID)
	}
	if !d.IsSelf {
		return fmt.Errorf("cannot edit post %s: only text posts are editable", itemRemoteID)
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", "t3_"+itemRemoteID)
	form.Set("text", newBody)

	var res apiResult
	if err := c.do(ctx, http.MethodPost, "/api/editusertext", nil, form, &res); err != nil {
		return err
	}
	return res.err()
}

// DeleteItem deletes a post owned by the bot account.
func (c *Client) DeleteItem(ctx context.Context, itemRemoteID string) error {
	d, err := c.info(ctx, "t3_"+itemRemoteID)
	if err != nil {
		return err
	}
	if d.Author != c.cfg.Username {
		return fmt.Errorf("cannot delete post %s: not the author", itemRemoteID)
	}

	form := url.Values{}
	form.Set("id", "t3_"+itemRemoteID)
	return c.do(ctx, http.MethodPost, "/api/del", nil, form, nil)
}

// DeleteComment deletes the bot's own comment permanently, or removes a
// third-party comment as a moderator (a visibility removal, not erasure).
func (c *Client) DeleteComment(ctx context.Context, commentRemoteID string) error {
	d, err := c.info(ctx, "t1_"+commentRemoteID)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("id", "t1_"+commentRemoteID)

	if d.Author == c.cfg.Username {
		return c.do(ctx, http.MethodPost, "/api/del", nil, form, nil)
	}
	form.Set("spam", "false")
	return c.do(ctx, http.MethodPost, "/api/remove", nil, form, nil)
}

// TestConnection probes the authenticated identity endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, nil, &me); err != nil {
		return err
	}
	if me.Name == "" {
		return fmt.Errorf("reddit identity probe returned no username")
	}
	log.Info().Str("username", me.Name).Msg("Reddit connection successful")
	return nil
}
