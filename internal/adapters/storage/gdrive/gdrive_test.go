package gdrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"rendernode/internal/pkg/errors"
)

func TestNameQuery(t *testing.T) {
	c := &Client{folderID: "folder123"}

	got := c.nameQuery(FileName("scenes", "it's/a.json"))
	want := `name = 'scenes/it\'s/a.json' and trashed = false and 'folder123' in parents`
	if got != want {
		t.Errorf("nameQuery = %q, want %q", got, want)
	}

	c.folderID = ""
	if got := c.nameQuery("b/k"); got != "name = 'b/k' and trashed = false" {
		t.Errorf("nameQuery without folder = %q", got)
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}
	return NewClient(svc, "folder123")
}

func TestGetObjectByName(t *testing.T) {
	var query string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			query = r.URL.Query().Get("q")
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"files":[{"id":"f1","name":"scenes/a.json","mimeType":"application/json"}]}`)
		case "/files/f1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"k":1}`)
		default:
			http.NotFound(w, r)
		}
	}))

	rc, ct, _, err := c.GetObject(context.Background(), "scenes", "a.json")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)

	if string(body) != `{"k":1}` || ct != "application/json" {
		t.Errorf("got body=%q type=%q", body, ct)
	}
	if !strings.Contains(query, "name = 'scenes/a.json'") {
		t.Errorf("unexpected list query %q", query)
	}
}

func TestGetObjectMissing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"files":[]}`)
	}))

	_, _, _, err := c.GetObject(context.Background(), "scenes", "missing.json")
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPing(t *testing.T) {
	var query, pageSize string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			http.NotFound(w, r)
			return
		}
		query = r.URL.Query().Get("q")
		pageSize = r.URL.Query().Get("pageSize")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"files":[]}`)
	}))

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if query != "trashed = false and 'folder123' in parents" || pageSize != "1" {
		t.Errorf("unexpected list q=%q pageSize=%q", query, pageSize)
	}
}

func TestPingFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))

	if err := c.Ping(context.Background()); !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}
