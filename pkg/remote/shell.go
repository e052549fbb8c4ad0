package remote

import (
	"strings"

	"github.com/google/uuid"
)

// PathPrefix makes user-installed binaries visible to non-interactive shells.
const PathPrefix = "export PATH=$PATH:$HOME/.local/bin:/usr/local/bin && "

const heredocDelimiter = "NANOBOT_EOF"

// ShellQuote wraps value in single quotes for a POSIX shell.
func ShellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// QuotePath quotes a remote path while keeping a leading "~" expandable.
func QuotePath(path string) string {
	switch {
	case path == "~":
		return `"$HOME"`
	case strings.HasPrefix(path, "~/"):
		return `"$HOME"/` + ShellQuote(path[2:])
	default:
		return ShellQuote(path)
	}
}

// WriteFileCommand builds a command that creates the parent directory and
// writes content through a quoted heredoc, so the shell expands nothing.
// The file always ends with a newline.
func WriteFileCommand(path, content string) string {
	delim := heredocDelimiter
	for containsLine(content, delim) {
		delim = heredocDelimiter + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	body := content
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	quoted := QuotePath(path)
	return "mkdir -p \"$(dirname " + quoted + ")\" && cat > " + quoted +
		" << '" + delim + "'\n" + body + delim
}

func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
