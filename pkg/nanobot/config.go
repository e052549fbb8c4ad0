package nanobot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nanoweb/pkg/remote"
)

// Document is a parsed nanobot config.json. Numbers are kept as json.Number
// so values round-trip without float conversion.
type Document map[string]any

// DecodeDocument parses a JSON object.
func DecodeDocument(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("config is not a JSON object")
	}
	return doc, nil
}

// EncodeJSON renders v with two-space indentation and unescaped HTML
// characters and non-ASCII text.
func EncodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GetConfig reads and parses config.json. A missing or unparsable file
// yields ErrConfigNotFound.
func (m *Manager) GetConfig(ctx context.Context) (Document, error) {
	raw, err := m.exec.ReadFile(ctx, m.paths.ConfigPath)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrConfigNotFound
	}

	doc, err := DecodeDocument([]byte(raw))
	if err != nil {
		m.log.Warn("Remote config is not valid JSON", zap.String("path", m.paths.ConfigPath), zap.Error(err))
		return nil, ErrConfigNotFound
	}
	return doc, nil
}

// configOrEmpty is GetConfig with a missing file treated as {}.
func (m *Manager) configOrEmpty(ctx context.Context) (Document, error) {
	doc, err := m.GetConfig(ctx)
	if errors.Is(err, ErrConfigNotFound) {
		return Document{}, nil
	}
	return doc, err
}

// SaveConfig replaces config.json.
func (m *Manager) SaveConfig(ctx context.Context, doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	content, err := EncodeJSON(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := m.exec.WriteFile(ctx, m.paths.ConfigPath, content); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// GetSection returns one top-level key of the config.
func (m *Manager) GetSection(ctx context.Context, name string) (any, error) {
	doc, err := m.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	section, ok := doc[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, name)
	}
	return section, nil
}

// SectionOrEmpty returns a top-level key, or {} when the key or the whole
// config is missing.
func (m *Manager) SectionOrEmpty(ctx context.Context, name string) (any, error) {
	doc, err := m.configOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if section, ok := doc[name]; ok {
		return section, nil
	}
	return map[string]any{}, nil
}

// SetSection replaces one top-level key. A missing config starts from {}.
func (m *Manager) SetSection(ctx context.Context, name string, data any) error {
	doc, err := m.configOrEmpty(ctx)
	if err != nil {
		return err
	}
	doc[name] = data
	return m.SaveConfig(ctx, doc)
}

// SetNested replaces doc[section][key], creating the section when needed.
// Used for individual channels and providers.
func (m *Manager) SetNested(ctx context.Context, section, key string, data any) error {
	doc, err := m.configOrEmpty(ctx)
	if err != nil {
		return err
	}
	inner, ok := doc[section].(map[string]any)
	if !ok {
		inner = map[string]any{}
	}
	inner[key] = data
	doc[section] = inner
	return m.SaveConfig(ctx, doc)
}
