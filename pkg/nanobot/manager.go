// Package nanobot implements the administrative operations on a remote
// nanobot installation: its config file, workspace files, cron records,
// logs and process. Every operation is expressed as shell commands run
// through an Executor.
package nanobot

import (
	"context"
	"time"

	"nanoweb/pkg/logger"
	"nanoweb/pkg/remote"
)

// Executor runs commands on the nanobot host. *remote.Client implements it.
type Executor interface {
	Exec(ctx context.Context, cmd string) (*remote.Result, error)
	ExecTimeout(ctx context.Context, cmd string, timeout time.Duration) (*remote.Result, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
}

// Paths locates nanobot's files on the remote host.
type Paths struct {
	ConfigPath    string
	WorkspacePath string
	CronPath      string
	LogFile       string
	ServiceName   string
}

// DefaultPaths matches a stock nanobot installation.
func DefaultPaths() Paths {
	return Paths{
		ConfigPath:    "~/.nanobot/config.json",
		WorkspacePath: "~/.nanobot/workspace",
		CronPath:      "~/.nanobot/cron/jobs.json",
		LogFile:       "/tmp/nanobot.log",
		ServiceName:   "nanobot",
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	if p.ConfigPath == "" {
		p.ConfigPath = d.ConfigPath
	}
	if p.WorkspacePath == "" {
		p.WorkspacePath = d.WorkspacePath
	}
	if p.CronPath == "" {
		p.CronPath = d.CronPath
	}
	if p.LogFile == "" {
		p.LogFile = d.LogFile
	}
	if p.ServiceName == "" {
		p.ServiceName = d.ServiceName
	}
	return p
}

// Manager performs nanobot operations for one SSH session.
type Manager struct {
	exec  Executor
	paths Paths
	log   *logger.Logger
}

// NewManager creates a Manager. Empty paths fall back to DefaultPaths.
func NewManager(exec Executor, paths Paths, log *logger.Logger) *Manager {
	return &Manager{exec: exec, paths: paths.withDefaults(), log: log}
}
