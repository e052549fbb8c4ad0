// Package remote runs commands on a nanobot host over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"nanoweb/pkg/logger"
)

// Session identifies an SSH target and the credentials used to reach it.
type Session struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns host:port.
func (s Session) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Result is the outcome of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Observer receives per-command timings. It may be nil.
type Observer interface {
	ObserveCommand(outcome string, elapsed time.Duration)
}

// Options tune how a Client connects.
type Options struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	KnownHostsFile string
	Observer       Observer
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	return o
}

var insecureWarning sync.Once

// Client is a lazily connected SSH client. It is safe for concurrent use;
// each command runs in its own SSH session over the shared connection.
type Client struct {
	sess Session
	opts Options
	log  *logger.Logger

	mu   sync.Mutex
	conn *ssh.Client
}

// NewClient creates a client. Nothing is dialled until the first command.
func NewClient(sess Session, opts Options, log *logger.Logger) *Client {
	return &Client{
		sess: sess,
		opts: opts.withDefaults(),
		log:  log.WithFields(zap.String("host", sess.Host), zap.Int("port", sess.Port)),
	}
}

// Connect dials the host unless a live connection already exists.
// A connection that stopped answering keepalives is replaced.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

func (c *Client) connection(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if _, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return c.conn, nil
		}
		c.log.Debug("SSH connection went stale, redialling")
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, &DialError{Kind: KindOther, Host: c.sess.Host, Port: c.sess.Port, Err: err}
	}

	password := c.sess.Password
	cfg := &ssh.ClientConfig{
		User: c.sess.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.DialTimeout,
	}

	addr := c.sess.Addr()
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.log.Warn("SSH dial failed", zap.Error(err))
		return nil, classifyDialError(err, c.sess.Host, c.sess.Port)
	}

	// Bound the handshake, then clear the deadline for the session's lifetime.
	_ = netConn.SetDeadline(time.Now().Add(c.opts.DialTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		_ = netConn.Close()
		c.log.Warn("SSH handshake failed", zap.Error(err))
		return nil, classifyDialError(err, c.sess.Host, c.sess.Port)
	}
	_ = netConn.SetDeadline(time.Time{})

	c.log.Debug("SSH connected", zap.String("user", c.sess.Username))
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		return cb, nil
	}
	insecureWarning.Do(func() {
		c.log.Warn("No known_hosts file configured, accepting any SSH host key")
	})
	return ssh.InsecureIgnoreHostKey(), nil
}

// Exec runs cmd with the PATH prefix and the default command timeout.
func (c *Client) Exec(ctx context.Context, cmd string) (*Result, error) {
	return c.ExecTimeout(ctx, cmd, c.opts.CommandTimeout)
}

// ExecTimeout runs cmd, killing the remote session after timeout.
// A non-zero exit status is reported in Result, not as an error.
func (c *Client) ExecTimeout(ctx context.Context, cmd string, timeout time.Duration) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.run(ctx, cmd)
	c.observe(res, err, time.Since(start))
	if err != nil {
		c.log.Warn("Remote command failed", zap.String("cmd", summarize(cmd)), zap.Error(err))
		return nil, err
	}
	c.log.Debug("Remote command finished",
		zap.String("cmd", summarize(cmd)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (c *Client) run(ctx context.Context, cmd string) (*Result, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	session, err := conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(PathPrefix + cmd); err != nil {
		return nil, fmt.Errorf("start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, fmt.Errorf("remote command: %w", ctx.Err())
	case err := <-done:
		res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		var missing *ssh.ExitMissingError
		if errors.As(err, &missing) {
			res.ExitCode = -1
			return res, nil
		}
		return nil, fmt.Errorf("remote command: %w", err)
	}
}

func (c *Client) observe(res *Result, err error, elapsed time.Duration) {
	if c.opts.Observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.ExitCode != 0:
		outcome = "nonzero"
	}
	c.opts.Observer.ObserveCommand(outcome, elapsed)
}

// ReadFile returns the contents of path, or ErrNotFound when cat fails.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	res, err := c.Exec(ctx, "cat "+QuotePath(path))
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return res.Stdout, nil
}

// WriteFile replaces path with content, creating parent directories.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	res, err := c.Exec(ctx, WriteFileCommand(path, content))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("write %s: exit %d: %s", path, res.ExitCode, res.Stderr)
	}
	return nil
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Verify opens and closes a connection to check the credentials.
func Verify(ctx context.Context, sess Session, opts Options, log *logger.Logger) error {
	client := NewClient(sess, opts, log)
	defer client.Close()
	return client.Connect(ctx)
}

func summarize(cmd string) string {
	if i := strings.IndexByte(cmd, '\n'); i >= 0 {
		cmd = cmd[:i] + " …"
	}
	if len(cmd) > 160 {
		cmd = cmd[:160] + "…"
	}
	return cmd
}
