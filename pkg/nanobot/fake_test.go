package nanobot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nanoweb/pkg/logger"
	"nanoweb/pkg/remote"
)

// fakeExec is an in-memory Executor. Files back ReadFile/WriteFile and
// handler answers Exec.
type fakeExec struct {
	mu       sync.Mutex
	files    map[string]string
	handler  func(cmd string) *remote.Result
	commands []string
	timeouts []time.Duration
}

func newFakeExec() *fakeExec {
	return &fakeExec{files: map[string]string{}}
}

func (f *fakeExec) Exec(ctx context.Context, cmd string) (*remote.Result, error) {
	return f.ExecTimeout(ctx, cmd, 0)
}

func (f *fakeExec) ExecTimeout(ctx context.Context, cmd string, timeout time.Duration) (*remote.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.timeouts = append(f.timeouts, timeout)
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return &remote.Result{}, nil
	}
	if res := handler(cmd); res != nil {
		return res, nil
	}
	return &remote.Result{}, nil
}

func (f *fakeExec) ReadFile(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", remote.ErrNotFound, path)
	}
	return content, nil
}

func (f *fakeExec) WriteFile(ctx context.Context, path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return nil
}

func (f *fakeExec) lastCommand() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return ""
	}
	return f.commands[len(f.commands)-1]
}

func newTestManager(exec *fakeExec) *Manager {
	return NewManager(exec, Paths{}, logger.NewNop())
}
