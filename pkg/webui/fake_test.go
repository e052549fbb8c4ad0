package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nanoweb/pkg/auth"
	"nanoweb/pkg/config"
	"nanoweb/pkg/logger"
	"nanoweb/pkg/metrics"
	"nanoweb/pkg/remote"
	"nanoweb/pkg/state"
)

// fakeRemote serves every session from one in-memory host.
type fakeRemote struct {
	mu        sync.Mutex
	verifyErr error
	verified  []remote.Session
	files     map[string]string
	handler   func(cmd string) *remote.Result
	commands  []string
	opened    int
	closed    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string]string{}}
}

func (f *fakeRemote) Open(sess remote.Session) RemoteClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return &fakeClient{remote: f}
}

func (f *fakeRemote) Verify(ctx context.Context, sess remote.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, sess)
	return f.verifyErr
}

func (f *fakeRemote) file(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	return content, ok
}

func (f *fakeRemote) counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

type fakeClient struct {
	remote *fakeRemote
}

func (c *fakeClient) Exec(ctx context.Context, cmd string) (*remote.Result, error) {
	return c.ExecTimeout(ctx, cmd, 0)
}

func (c *fakeClient) ExecTimeout(ctx context.Context, cmd string, timeout time.Duration) (*remote.Result, error) {
	f := c.remote
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		if res := handler(cmd); res != nil {
			return res, nil
		}
	}
	return &remote.Result{}, nil
}

func (c *fakeClient) ReadFile(ctx context.Context, path string) (string, error) {
	content, ok := c.remote.file(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", remote.ErrNotFound, path)
	}
	return content, nil
}

func (c *fakeClient) WriteFile(ctx context.Context, path, content string) error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.files[path] = content
	return nil
}

func (c *fakeClient) Close() error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.closed++
	return nil
}

type testEnv struct {
	server *Server
	remote *fakeRemote
	tokens *auth.Manager
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Auth.SecretKey = "test-secret"
	log := logger.NewNop()

	kv, err := state.NewFileStore(log, filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("state store: %v", err)
	}
	tokens, err := auth.NewManager(cfg.Auth.SecretKey, cfg.Auth.Algorithm, time.Hour, kv)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	s := NewServer(cfg, log, tokens, metrics.New())
	fr := newFakeRemote()
	s.remote = fr

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: s, remote: fr, tokens: tokens, http: ts}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := e.tokens.Issue(auth.Session{Host: "10.0.0.5", Port: 22, Username: "root", Password: "pw"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// do sends a JSON request and decodes the JSON response into out.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
