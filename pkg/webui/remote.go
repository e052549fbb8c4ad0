package webui

import (
	"context"

	"nanoweb/pkg/config"
	"nanoweb/pkg/logger"
	"nanoweb/pkg/metrics"
	"nanoweb/pkg/nanobot"
	"nanoweb/pkg/remote"
)

// RemoteClient is an open connection to a nanobot host.
type RemoteClient interface {
	nanobot.Executor
	Close() error
}

// Remote opens connections to nanobot hosts.
type Remote interface {
	// Open returns a lazily connected client for sess.
	Open(sess remote.Session) RemoteClient
	// Verify checks that sess can log in.
	Verify(ctx context.Context, sess remote.Session) error
}

type sshRemote struct {
	opts remote.Options
	log  *logger.Logger
}

func newSSHRemote(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *sshRemote {
	opts := remote.Options{
		DialTimeout:    cfg.DialTimeout(),
		CommandTimeout: cfg.CommandTimeout(),
		KnownHostsFile: cfg.SSH.KnownHostsFile,
		Observer:       m,
	}
	return &sshRemote{opts: opts, log: log}
}

func (r *sshRemote) Open(sess remote.Session) RemoteClient {
	return remote.NewClient(sess, r.opts, r.log)
}

func (r *sshRemote) Verify(ctx context.Context, sess remote.Session) error {
	return remote.Verify(ctx, sess, r.opts, r.log)
}
