// Package keepapi talks to a Keep bridge service over JSON/HTTP.
//
// The bridge exposes the same operations as the Keep client library:
// authentication, label lookup and creation, note search by label, media links,
// and a sync call that commits label changes queued since the previous sync.
package keepapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

type Client struct {
	baseURL *url.URL
	hc      *http.Client
	limiter *rate.Limiter
	token   string

	pending []labelChange
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithRateLimit caps requests per second; zero or less disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.hc.Timeout = d
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must be http or https", baseURL)
	}
	c := &Client{baseURL: u, hc: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type labelDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type blobDTO struct {
	ID       string `json:"id"`
	MIMEType string `json:"mimeType,omitempty"`
}

type noteDTO struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Text     string     `json:"text"`
	Labels   []labelDTO `json:"labels"`
	Blobs    []blobDTO  `json:"blobs"`
	Color    string     `json:"color,omitempty"`
	Pinned   bool       `json:"pinned,omitempty"`
	Archived bool       `json:"archived,omitempty"`
	Created  time.Time  `json:"created,omitempty"`
	Updated  time.Time  `json:"updated,omitempty"`
}

type labelChange struct {
	NoteID   string   `json:"noteId"`
	LabelIDs []string `json:"labelIds"`
}

func (c *Client) Login(ctx context.Context, user string, secret string) error {
	if strings.TrimSpace(user) == "" || secret == "" {
		return fmt.Errorf("%w: username and password are required", keepdomain.ErrAuthentication)
	}
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": user, "password": secret}
	if err := c.do(ctx, http.MethodPost, "/v1/auth", nil, body, &out); err != nil {
		return err
	}
	if out.Token == "" {
		return fmt.Errorf("%w: empty token", keepdomain.ErrAuthentication)
	}
	c.token = out.Token
	return nil
}

// Sync commits queued label changes.
func (c *Client) Sync(ctx context.Context) error {
	changes := c.pending
	if changes == nil {
		changes = []labelChange{}
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sync", nil, map[string]any{"changes": changes}, nil); err != nil {
		return err
	}
	c.pending = nil
	return nil
}

func (c *Client) FindLabel(ctx context.Context, name string) (keepdomain.Label, bool, error) {
	var labels []labelDTO
	if err := c.do(ctx, http.MethodGet, "/v1/labels", nil, nil, &labels); err != nil {
		return keepdomain.Label{}, false, err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return keepdomain.Label{ID: l.ID, Name: l.Name}, true, nil
		}
	}
	return keepdomain.Label{}, false, nil
}

func (c *Client) CreateLabel(ctx context.Context, name string) (keepdomain.Label, error) {
	var out labelDTO
	if err := c.do(ctx, http.MethodPost, "/v1/labels", nil, map[string]string{"name": name}, &out); err != nil {
		return keepdomain.Label{}, err
	}
	return keepdomain.Label{ID: out.ID, Name: out.Name}, nil
}

func (c *Client) Find(ctx context.Context, labels ...keepdomain.Label) ([]keepdomain.Note, error) {
	q := url.Values{}
	for _, l := range labels {
		q.Add("label", l.ID)
	}
	var dtos []noteDTO
	if err := c.do(ctx, http.MethodGet, "/v1/notes", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]keepdomain.Note, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// SetLabels queues the full label set for a note; it is sent on the next Sync.
func (c *Client) SetLabels(ctx context.Context, noteID string, labels []keepdomain.Label) error {
	ids := make([]string, 0, len(labels))
	for _, l := range labels {
		ids = append(ids, l.ID)
	}
	for i := range c.pending {
		if c.pending[i].NoteID == noteID {
			c.pending[i].LabelIDs = ids
			return nil
		}
	}
	c.pending = append(c.pending, labelChange{NoteID: noteID, LabelIDs: ids})
	return nil
}

func (c *Client) MediaLink(ctx context.Context, blob keepdomain.BlobRef) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/blobs/"+blob.ID+"/link", nil, nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty media link for blob %s", keepdomain.ErrNetwork, blob.ID)
	}
	return out.URL, nil
}

func (d noteDTO) toDomain() keepdomain.Note {
	n := keepdomain.Note{
		ID:       d.ID,
		Title:    d.Title,
		Text:     d.Text,
		Color:    d.Color,
		Pinned:   d.Pinned,
		Archived: d.Archived,
		Created:  d.Created,
		Updated:  d.Updated,
	}
	for _, l := range d.Labels {
		n.Labels = append(n.Labels, keepdomain.Label{ID: l.ID, Name: l.Name})
	}
	for _, b := range d.Blobs {
		n.Blobs = append(n.Blobs, keepdomain.BlobRef{ID: b.ID, MIMEType: b.MIMEType})
	}
	return n
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, in any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: wait for rate limit: %w", keepdomain.ErrNetwork, err)
		}
	}

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%w: build %s %s: %w", keepdomain.ErrNetwork, method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", keepdomain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s %s: %s", keepdomain.ErrAuthentication, method, path, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(msg))
		if detail == "" {
			return fmt.Errorf("%w: %s %s: %s", keepdomain.ErrNetwork, method, path, resp.Status)
		}
		return fmt.Errorf("%w: %s %s: %s: %s", keepdomain.ErrNetwork, method, path, resp.Status, detail)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", keepdomain.ErrNetwork, method, path, err)
	}
	return nil
}
