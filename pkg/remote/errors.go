package remote

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNotFound is returned by ReadFile when the remote file cannot be read.
var ErrNotFound = errors.New("remote file not found")

// DialKind groups SSH connection failures by what the user can do about them.
type DialKind int

const (
	KindOther DialKind = iota
	KindAuth
	KindProtocol
	KindHostKey
	KindUnreachable
	KindNoRoute
	KindNetwork
)

// DialError is returned when an SSH connection cannot be established.
type DialError struct {
	Kind DialKind
	Host string
	Port int
	Err  error
}

func (e *DialError) Error() string {
	switch e.Kind {
	case KindAuth:
		return "Authentication failed. Check username/password."
	case KindProtocol:
		return fmt.Sprintf("SSH protocol error: %v", e.Err)
	case KindHostKey:
		return "Host key verification failed."
	case KindUnreachable:
		return fmt.Sprintf("Cannot connect to %s:%d. Server may be down, port may be blocked, or SSH service not running.", e.Host, e.Port)
	case KindNoRoute:
		return fmt.Sprintf("No route to host %s. Check the IP address and network connectivity.", e.Host)
	case KindNetwork:
		return "Network unreachable. Check your internet connection."
	default:
		return fmt.Sprintf("Connection failed: %v", e.Err)
	}
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// Suggestions returns troubleshooting hints shown after a failed login.
func (e *DialError) Suggestions() []string {
	switch e.Kind {
	case KindUnreachable:
		return []string{
			"Check if the server is running and accessible",
			"Verify the IP address is correct",
			"Try different SSH ports (22, 2222, 22022, etc.)",
			"Check if SSH service is running on the server",
			"Verify firewall rules allow SSH connections",
		}
	case KindAuth:
		return []string{
			"Verify username and password are correct",
			"Check if SSH key authentication is required instead",
		}
	case KindNoRoute:
		return []string{
			"Check network connectivity",
			"Verify the IP address is reachable from this network",
		}
	}
	return nil
}

func classifyDialError(err error, host string, port int) *DialError {
	de := &DialError{Kind: KindOther, Host: host, Port: port, Err: err}

	var keyErr *knownhosts.KeyError
	var revokedErr *knownhosts.RevokedError
	var netErr net.Error
	msg := strings.ToLower(err.Error())

	switch {
	case errors.As(err, &keyErr), errors.As(err, &revokedErr):
		de.Kind = KindHostKey
	case strings.Contains(msg, "unable to authenticate"):
		de.Kind = KindAuth
	case errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"):
		de.Kind = KindUnreachable
	case strings.Contains(msg, "no route to host"):
		de.Kind = KindNoRoute
	case strings.Contains(msg, "network is unreachable"):
		de.Kind = KindNetwork
	case strings.HasPrefix(msg, "ssh:"):
		de.Kind = KindProtocol
	}
	return de
}
