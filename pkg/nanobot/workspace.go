package nanobot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"nanoweb/pkg/remote"
)

// Agents is the agents page payload. AgentsMD is nil when AGENTS.md is absent.
type Agents struct {
	Config   any     `json:"config"`
	AgentsMD *string `json:"agents_md"`
}

// Skill is a SKILL.md file found on the host.
type Skill struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// MemoryFile is a file under the workspace memory directory.
type MemoryFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// builtinSkillRoots are where pip installs bundled skills. They are shell
// globs and substitutions, so they are not quoted.
var builtinSkillRoots = []string{
	"/usr/local/lib/python*/dist-packages/nanobot/skills",
	"/root/.local/lib/python*/dist-packages/nanobot/skills",
	"$(pip show nanobot 2>/dev/null | grep Location | cut -d' ' -f2)/nanobot/skills",
}

func (m *Manager) workspaceFile(rel string) string {
	return strings.TrimRight(m.paths.WorkspacePath, "/") + "/" + rel
}

// Agents returns the agents config section and AGENTS.md.
func (m *Manager) Agents(ctx context.Context) (*Agents, error) {
	cfg, err := m.SectionOrEmpty(ctx, "agents")
	if err != nil {
		return nil, err
	}
	out := &Agents{Config: cfg}

	md, err := m.exec.ReadFile(ctx, m.workspaceFile("AGENTS.md"))
	switch {
	case errors.Is(err, remote.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		out.AgentsMD = &md
	}
	return out, nil
}

// SaveAgentsMD replaces AGENTS.md in the workspace.
func (m *Manager) SaveAgentsMD(ctx context.Context, content string) error {
	return m.exec.WriteFile(ctx, m.workspaceFile("AGENTS.md"), content)
}

// ValidateSkillName rejects names that would escape the skills directory.
func ValidateSkillName(name string) error {
	switch {
	case strings.TrimSpace(name) == "",
		name == ".", name == "..",
		strings.ContainsAny(name, "/\\\x00\n\r"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ListSkills returns workspace skills followed by builtin ones. A builtin
// skill sharing a name with an earlier entry is skipped.
func (m *Manager) ListSkills(ctx context.Context) ([]Skill, error) {
	skills := []Skill{}
	seen := map[string]bool{}

	collect := func(root, source string) error {
		res, err := m.exec.Exec(ctx, "find "+root+" -maxdepth 2 -name 'SKILL.md' 2>/dev/null || true")
		if err != nil {
			return err
		}
		for _, line := range splitLines(res.Stdout) {
			name := path.Base(strings.TrimSuffix(line, "/SKILL.md"))
			if seen[name] {
				continue
			}
			content, err := m.exec.ReadFile(ctx, line)
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				return err
			}
			seen[name] = true
			skills = append(skills, Skill{
				Name:    name,
				Source:  source,
				Path:    line,
				Content: strings.TrimSpace(content),
			})
		}
		return nil
	}

	if err := collect(remote.QuotePath(m.workspaceFile("skills")), "workspace"); err != nil {
		return nil, err
	}
	for _, root := range builtinSkillRoots {
		if err := collect(root, "builtin"); err != nil {
			return nil, err
		}
	}
	return skills, nil
}

// GetSkill finds a skill by name.
func (m *Manager) GetSkill(ctx context.Context, name string) (*Skill, error) {
	skills, err := m.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	for i := range skills {
		if skills[i].Name == name {
			return &skills[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
}

func (m *Manager) skillPath(name string) string {
	return m.workspaceFile("skills/" + name + "/SKILL.md")
}

// UpdateSkill writes the workspace copy of a skill, creating it if needed.
func (m *Manager) UpdateSkill(ctx context.Context, name, content string) error {
	if err := ValidateSkillName(name); err != nil {
		return err
	}
	return m.exec.WriteFile(ctx, m.skillPath(name), content)
}

// CreateSkill writes a new workspace skill and fails with ErrSkillExists
// when its SKILL.md is already present.
func (m *Manager) CreateSkill(ctx context.Context, name, content string) error {
	if err := ValidateSkillName(name); err != nil {
		return err
	}
	_, err := m.exec.ReadFile(ctx, m.skillPath(name))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrSkillExists, name)
	case !errors.Is(err, remote.ErrNotFound):
		return err
	}
	return m.exec.WriteFile(ctx, m.skillPath(name), content)
}

// ListMemory returns every regular file under <workspace>/memory.
func (m *Manager) ListMemory(ctx context.Context) ([]MemoryFile, error) {
	root := remote.QuotePath(m.workspaceFile("memory"))
	res, err := m.exec.Exec(ctx, "find "+root+" -type f 2>/dev/null || true")
	if err != nil {
		return nil, err
	}

	files := []MemoryFile{}
	for _, line := range splitLines(res.Stdout) {
		content, err := m.exec.ReadFile(ctx, line)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return nil, err
		}
		files = append(files, MemoryFile{
			Name:    path.Base(line),
			Path:    line,
			Content: strings.TrimSpace(content),
		})
	}
	return files, nil
}

// ValidateMemoryPath accepts only files inside a directory named "memory"
// and refuses parent-directory segments.
func ValidateMemoryPath(p string) error {
	if strings.TrimSpace(p) == "" || strings.ContainsAny(p, "\x00\n\r") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	segments := strings.Split(p, "/")
	inMemory := false
	for i, seg := range segments {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		if seg == "memory" && i < len(segments)-1 {
			inMemory = true
		}
	}
	if !inMemory || segments[len(segments)-1] == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

// UpdateMemory replaces one memory file.
func (m *Manager) UpdateMemory(ctx context.Context, p, content string) error {
	if err := ValidateMemoryPath(p); err != nil {
		return err
	}
	return m.exec.WriteFile(ctx, p, content)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
