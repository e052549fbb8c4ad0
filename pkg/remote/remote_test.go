package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"nanoweb/pkg/logger"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"", "''"},
		{"it's", `'it'"'"'s'`},
		{"$(rm -rf /)", "'$(rm -rf /)'"},
	}
	for _, tc := range tests {
		if got := ShellQuote(tc.in); got != tc.want {
			t.Fatalf("ShellQuote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuotePathKeepsTildeExpandable(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"~", `"$HOME"`},
		{"~/.nanobot/config.json", `"$HOME"/'.nanobot/config.json'`},
		{"/etc/nano bot", "'/etc/nano bot'"},
		{"~user/x", "'~user/x'"},
	}
	for _, tc := range tests {
		if got := QuotePath(tc.in); got != tc.want {
			t.Fatalf("QuotePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteFileCommand(t *testing.T) {
	content := "{\n  \"name\": \"it's $HOME\"\n}"
	cmd := WriteFileCommand("~/.nanobot/config.json", content)

	wantPrefix := `mkdir -p "$(dirname "$HOME"/'.nanobot/config.json')" && cat > "$HOME"/'.nanobot/config.json' << 'NANOBOT_EOF'` + "\n"
	if !strings.HasPrefix(cmd, wantPrefix) {
		t.Fatalf("unexpected command prefix:\n%s", cmd)
	}
	if !strings.HasSuffix(cmd, "\n"+content+"\nNANOBOT_EOF") {
		t.Fatalf("content must be embedded verbatim:\n%s", cmd)
	}
}

func TestWriteFileCommandAvoidsDelimiterCollision(t *testing.T) {
	content := "line\nNANOBOT_EOF\nmore\n"
	cmd := WriteFileCommand("/tmp/x", content)

	header := strings.SplitN(cmd, "\n", 2)[0]
	if strings.HasSuffix(header, "'NANOBOT_EOF'") {
		t.Fatalf("delimiter must change when content contains it: %s", header)
	}
	delim := strings.Trim(header[strings.LastIndex(header, " ")+1:], "'")
	if !strings.HasSuffix(cmd, content+delim) {
		t.Fatalf("command must end with content and delimiter %q:\n%s", delim, cmd)
	}
}

func TestDialErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        DialKind
		message     string
		suggestions int
	}{
		{
			name:        "auth",
			err:         errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"),
			kind:        KindAuth,
			message:     "Authentication failed. Check username/password.",
			suggestions: 2,
		},
		{
			name:        "refused",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")},
			kind:        KindUnreachable,
			message:     "Cannot connect to 10.0.0.1:22. Server may be down, port may be blocked, or SSH service not running.",
			suggestions: 5,
		},
		{
			name:        "no route",
			err:         errors.New("dial tcp 10.0.0.1:22: connect: no route to host"),
			kind:        KindNoRoute,
			message:     "No route to host 10.0.0.1. Check the IP address and network connectivity.",
			suggestions: 2,
		},
		{
			name:    "network",
			err:     errors.New("dial tcp 10.0.0.1:22: connect: network is unreachable"),
			kind:    KindNetwork,
			message: "Network unreachable. Check your internet connection.",
		},
		{
			name:    "protocol",
			err:     errors.New("ssh: handshake failed: ssh: no common algorithm for key exchange"),
			kind:    KindProtocol,
			message: "SSH protocol error: ssh: handshake failed: ssh: no common algorithm for key exchange",
		},
		{
			name:    "other",
			err:     errors.New("boom"),
			kind:    KindOther,
			message: "Connection failed: boom",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			de := classifyDialError(tc.err, "10.0.0.1", 22)
			if de.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", de.Kind, tc.kind)
			}
			if de.Error() != tc.message {
				t.Fatalf("message = %q, want %q", de.Error(), tc.message)
			}
			if len(de.Suggestions()) != tc.suggestions {
				t.Fatalf("suggestions = %d, want %d", len(de.Suggestions()), tc.suggestions)
			}
			if !errors.Is(de, tc.err) {
				t.Fatalf("DialError must unwrap to the cause")
			}
		})
	}
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	openPort := ln.Addr().(*net.TCPAddr).Port

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	results := Probe(context.Background(), "127.0.0.1", []int{closedPort, openPort}, time.Second)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Port != closedPort || results[0].Open {
		t.Fatalf("closed port reported open: %+v", results[0])
	}
	if results[1].Port != openPort || !results[1].Open {
		t.Fatalf("open port reported closed: %+v", results[1])
	}
	if got := fmt.Sprint(OpenPorts(results)); got != fmt.Sprint([]int{openPort}) {
		t.Fatalf("OpenPorts = %s", got)
	}
}

func TestVerifyReportsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	err = Verify(context.Background(), Session{Host: "127.0.0.1", Port: port, Username: "root"},
		Options{DialTimeout: time.Second}, logger.NewNop())
	var de *DialError
	if !errors.As(err, &de) {
		t.Fatalf("expected DialError, got %v", err)
	}
	if de.Kind != KindUnreachable {
		t.Fatalf("expected unreachable, got %v (%v)", de.Kind, de.Err)
	}
}
