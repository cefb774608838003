package keepapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

type fakeBridge struct {
	mu      sync.Mutex
	labels  []labelDTO
	notes   []noteDTO
	synced  [][]labelChange
	queries []string
}

func (b *fakeBridge) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["username"] != "me@example.com" || in["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			b.mu.Lock()
			defer b.mu.Unlock()
			h(w, r)
		}
	}
	mux.HandleFunc("GET /v1/labels", authed(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(b.labels)
	}))
	mux.HandleFunc("POST /v1/labels", authed(func(w http.ResponseWriter, r *http.Request) {
		var in labelDTO
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		l := labelDTO{ID: "label-" + strings.ToLower(strings.ReplaceAll(in.Name, " ", "-")), Name: in.Name}
		b.labels = append(b.labels, l)
		_ = json.NewEncoder(w).Encode(l)
	}))
	mux.HandleFunc("GET /v1/notes", authed(func(w http.ResponseWriter, r *http.Request) {
		b.queries = append(b.queries, r.URL.RawQuery)
		want := r.URL.Query()["label"]
		out := []noteDTO{}
		for _, n := range b.notes {
			for _, l := range n.Labels {
				if contains(want, l.ID) {
					out = append(out, n)
					break
				}
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	mux.HandleFunc("POST /v1/sync", authed(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Changes []labelChange `json:"changes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		b.synced = append(b.synced, in.Changes)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /v1/blobs/{id}/link", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "no such blob", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://media.test/" + r.PathValue("id")})
	}))
	return mux
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func newTestClient(t *testing.T, bridge *fakeBridge) *Client {
	t.Helper()
	srv := httptest.NewServer(bridge.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", WithRateLimit(1000, 10))
	require.NoError(t, err)
	return c
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	c := newTestClient(t, &fakeBridge{})
	err := c.Login(context.Background(), "me@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, keepdomain.ErrAuthentication))

	err = c.Login(context.Background(), "", "")
	assert.True(t, errors.Is(err, keepdomain.ErrAuthentication))
}

func TestRequestsWithoutLoginAreUnauthorized(t *testing.T) {
	c := newTestClient(t, &fakeBridge{})
	_, _, err := c.FindLabel(context.Background(), "Ready to Export")
	require.Error(t, err)
	assert.True(t, errors.Is(err, keepdomain.ErrAuthentication))
}

func TestFindNotesByLabel(t *testing.T) {
	bridge := &fakeBridge{
		labels: []labelDTO{{ID: "l1", Name: "Ready to Export"}},
		notes: []noteDTO{
			{ID: "n1", Title: "Groceries", Text: "☐ milk", Labels: []labelDTO{{ID: "l1", Name: "Ready to Export"}}, Blobs: []blobDTO{{ID: "b1", MIMEType: "image/png"}}},
			{ID: "n2", Title: "Other", Labels: []labelDTO{{ID: "l2", Name: "work"}}},
		},
	}
	c := newTestClient(t, bridge)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "me@example.com", "secret"))

	label, ok, err := c.FindLabel(ctx, "ready to export")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l1", label.ID)

	notes, err := c.Find(ctx, label)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Groceries", notes[0].Title)
	assert.Equal(t, []keepdomain.BlobRef{{ID: "b1", MIMEType: "image/png"}}, notes[0].Blobs)
	assert.Equal(t, []string{"label=l1"}, bridge.queries)

	_, ok, err = c.FindLabel(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLabelChangesAreSentOnSync(t *testing.T) {
	bridge := &fakeBridge{labels: []labelDTO{{ID: "l1", Name: "Ready to Export"}}}
	c := newTestClient(t, bridge)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "me@example.com", "secret"))

	done, err := c.CreateLabel(ctx, "Succesfully Exported")
	require.NoError(t, err)
	assert.Equal(t, "label-succesfully-exported", done.ID)

	migrate := keepdomain.Label{ID: "l1", Name: "Ready to Export"}
	require.NoError(t, c.SetLabels(ctx, "n1", []keepdomain.Label{migrate}))
	require.NoError(t, c.SetLabels(ctx, "n1", []keepdomain.Label{migrate, done}))
	assert.Empty(t, bridge.synced)

	require.NoError(t, c.Sync(ctx))
	require.NoError(t, c.Sync(ctx))

	require.Len(t, bridge.synced, 2)
	assert.Equal(t, []labelChange{{NoteID: "n1", LabelIDs: []string{"l1", "label-succesfully-exported"}}}, bridge.synced[0])
	assert.Empty(t, bridge.synced[1])
}

func TestMediaLink(t *testing.T) {
	c := newTestClient(t, &fakeBridge{})
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "me@example.com", "secret"))

	link, err := c.MediaLink(ctx, keepdomain.BlobRef{ID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "https://media.test/b1", link)

	_, err = c.MediaLink(ctx, keepdomain.BlobRef{ID: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, keepdomain.ErrNetwork))
	assert.Contains(t, err.Error(), "no such blob")
}

func TestNewRejectsNonHTTPURL(t *testing.T) {
	_, err := New("ftp://bridge.test")
	require.Error(t, err)
}

func TestCancelledRequestKeepsContextError(t *testing.T) {
	c := newTestClient(t, &fakeBridge{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.FindLabel(ctx, "Ready to Export")
	require.Error(t, err)
	assert.True(t, errors.Is(err, keepdomain.ErrNetwork))
	assert.True(t, errors.Is(err, context.Canceled))
}
