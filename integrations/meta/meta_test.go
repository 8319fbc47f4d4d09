package meta

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphStub struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]string
	handler  func(w http.ResponseWriter, r *http.Request, n int)
}

func newGraphStub(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, n int)) (*graphStub, Config) {
	t.Helper()
	stub := &graphStub{bodies: map[string][]string{}, handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		key := r.Method + " " + r.URL.Path
		stub.requests = append(stub.requests, key)
		n := 0
		for _, k := range stub.requests {
			if k == key {
				n++
			}
		}
		if r.Method == http.MethodPost {
			if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				raw, _ := json.Marshal(body)
				stub.bodies[key] = append(stub.bodies[key], string(raw))
			} else {
				_ = r.ParseForm()
				stub.bodies[key] = append(stub.bodies[key], r.PostForm.Encode())
			}
		}
		stub.mu.Unlock()
		stub.handler(w, r, n)
	}))
	t.Cleanup(srv.Close)
	return stub, Config{
		BaseURL:      srv.URL,
		PollInterval: time.Millisecond,
		PollTimeout:  200 * time.Millisecond,
		RetryDelay:   time.Millisecond,
	}
}

func (s *graphStub) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.requests {
		if k == key {
			n++
		}
	}
	return n
}

func (s *graphStub) body(key string, i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[key][i]
}

func graphErr(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"message":"` + msg + `","type":"OAuthException","code":190}}`))
}

var creds = tenants.PlatformCredentials{PageID: "123", PageToken: "tok", InstagramBusinessID: "ig-9"}

func TestFacebookPublishPhoto(t *testing.T) {
	stub, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		_, _ = w.Write([]byte(`{"id":"photo-1","post_id":"123_456"}`))
	})
	fb := NewFacebookClient(cfg)

	id, err := fb.PublishPhoto(context.Background(), creds, "Fresh cut", "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "123_456", id)
	assert.Equal(t, 1, stub.count("POST /v19.0/123/photos"))
	assert.JSONEq(t, `{"caption":"Fresh cut","url":"https://cdn.example.com/a.jpg","access_token":"tok"}`,
		stub.body("POST /v19.0/123/photos", 0))
}

func TestFacebookFallsBackToFeed(t *testing.T) {
	stub, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		if strings.HasSuffix(r.URL.Path, "/photos") {
			graphErr(w, http.StatusBadRequest, "Invalid image URL")
			return
		}
		_, _ = w.Write([]byte(`{"id":"123_789"}`))
	})
	fb := NewFacebookClient(cfg)

	id, err := fb.PublishPhoto(context.Background(), creds, strings.Repeat("a", 2300), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "123_789", id)
	assert.Equal(t, 1, stub.count("POST /v19.0/123/feed"))

	var feed map[string]string
	require.NoError(t, json.Unmarshal([]byte(stub.body("POST /v19.0/123/feed", 0)), &feed))
	assert.Len(t, feed["message"], 2200)
}

func TestFacebookFeedFailureReturnsGraphError(t *testing.T) {
	_, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		graphErr(w, http.StatusUnauthorized, "Session has expired")
	})
	fb := NewFacebookClient(cfg)

	_, err := fb.PublishPhoto(context.Background(), creds, "x", "")
	require.Error(t, err)
	var gerr *GraphError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 190, gerr.Code)
	assert.Equal(t, http.StatusUnauthorized, gerr.StatusCode)
	assert.Equal(t, "Session has expired", gerr.Message)
}

func TestFacebookRequiresCredentials(t *testing.T) {
	fb := NewFacebookClient(Config{})
	_, err := fb.PublishPhoto(context.Background(), tenants.PlatformCredentials{PageID: "1"}, "x", "")
	assert.ErrorIs(t, err, ErrMissingPage)
}

func TestInstagramPublishFlow(t *testing.T) {
	stub, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, n int) {
		switch {
		case r.URL.Path == "/v24.0/ig-9/media":
			if n == 1 {
				graphErr(w, http.StatusInternalServerError, "temporarily unavailable")
				return
			}
			_, _ = w.Write([]byte(`{"id":"container-1"}`))
		case r.URL.Path == "/v24.0/container-1":
			assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
			if n < 3 {
				_, _ = w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status_code":"FINISHED"}`))
		case r.URL.Path == "/v24.0/ig-9/media_publish":
			_, _ = w.Write([]byte(`{"id":"media-77"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ig := NewInstagramClient(cfg)

	id, err := ig.Publish(context.Background(), "ig-9", "tok", "Fresh cut", "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "media-77", id)
	assert.Equal(t, 2, stub.count("POST /v24.0/ig-9/media"))
	assert.Equal(t, 3, stub.count("GET /v24.0/container-1"))
	assert.Contains(t, stub.body("POST /v24.0/ig-9/media_publish", 0), "creation_id=container-1")
}

func TestInstagramContainerError(t *testing.T) {
	stub, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"status_code":"ERROR"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"container-2"}`))
	})
	ig := NewInstagramClient(cfg)

	_, err := ig.Publish(context.Background(), "ig-9", "tok", "x", "https://cdn.example.com/a.jpg")
	assert.ErrorIs(t, err, ErrContainerFailed)
	assert.Equal(t, 0, stub.count("POST /v24.0/ig-9/media_publish"))
}

func TestInstagramContainerTimeout(t *testing.T) {
	_, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"container-3"}`))
	})
	cfg.PollTimeout = 20 * time.Millisecond
	ig := NewInstagramClient(cfg)

	_, err := ig.Publish(context.Background(), "ig-9", "tok", "x", "https://cdn.example.com/a.jpg")
	assert.ErrorIs(t, err, ErrContainerTimeout)
}

func TestInstagramCreateGivesUpAfterRetries(t *testing.T) {
	stub, cfg := newGraphStub(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		graphErr(w, http.StatusBadRequest, "Only photo or video can be accepted as media type.")
	})
	ig := NewInstagramClient(cfg)

	_, err := ig.Publish(context.Background(), "ig-9", "tok", "x", "https://cdn.example.com/a.jpg")
	require.Error(t, err)
	var gerr *GraphError
	assert.True(t, errors.As(err, &gerr))
	assert.Equal(t, 3, stub.count("POST /v24.0/ig-9/media"))
}
