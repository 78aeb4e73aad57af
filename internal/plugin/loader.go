package plugin

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/fediwatch/mentiond/internal/domain"
)

// Loader convention: a plugin is a single Go source file in the plugin
// directory, interpreted at startup with yaegi (stdlib symbols only).
// It must export
//
//	func Name() string
//	func ProcessMention(mention map[string]string) (string, error)
//
// The mention map carries id, status_id, author, author_id, content and
// created_at (RFC3339). An empty reply string means NoAction.
//
// Files with a leading underscore are skipped, mirroring the usual
// "disabled plugin" convention. A file that fails to interpret is
// skipped with a warning; zero loadable plugins is fatal.

// LoadDir interprets every plugin file in dir and returns the registry.
func LoadDir(dir string, logger *zap.Logger) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading plugin directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var plugins []Plugin
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := loadFile(path)
		if err != nil {
			logger.Warn("skipping plugin that failed to load",
				zap.String("file", name),
				zap.Error(err))
			continue
		}
		logger.Info("loaded plugin",
			zap.String("name", p.Name()),
			zap.String("file", name))
		plugins = append(plugins, p)
	}

	if len(plugins) == 0 {
		return nil, fmt.Errorf("plugin directory %s: %w", dir, ErrNoPlugins)
	}
	return NewRegistry(plugins)
}

// loadFile interprets one plugin source file and binds its exported
// functions.
func loadFile(path string) (Plugin, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pkg, err := packageName(src)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading interpreter stdlib: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("evaluating plugin source: %w", err)
	}

	nameVal, err := i.Eval(pkg + ".Name")
	if err != nil {
		return nil, fmt.Errorf("Name function not found: %w", err)
	}
	nameFn, ok := nameVal.Interface().(func() string)
	if !ok {
		return nil, fmt.Errorf("Name has wrong signature (want func() string)")
	}

	procVal, err := i.Eval(pkg + ".ProcessMention")
	if err != nil {
		return nil, fmt.Errorf("ProcessMention function not found: %w", err)
	}
	procFn, ok := procVal.Interface().(func(map[string]string) (string, error))
	if !ok {
		return nil, fmt.Errorf("ProcessMention has wrong signature (want func(map[string]string) (string, error))")
	}

	name := strings.TrimSpace(nameFn())
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".go")
	}
	return &interpretedPlugin{name: name, process: procFn}, nil
}

// packageName extracts the package clause from plugin source.
func packageName(src []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(src))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "package ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "package ")), nil
		}
	}
	return "", fmt.Errorf("no package clause found")
}

// interpretedPlugin adapts a yaegi-interpreted plugin file to the
// Plugin capability.
type interpretedPlugin struct {
	name    string
	process func(map[string]string) (string, error)
}

func (p *interpretedPlugin) Name() string { return p.name }

func (p *interpretedPlugin) ProcessMention(_ context.Context, m domain.Mention) (*domain.Reply, error) {
	text, err := p.process(map[string]string{
		"id":         m.ID,
		"status_id":  m.StatusID,
		"author":     m.Author,
		"author_id":  m.AuthorID,
		"content":    m.Content,
		"created_at": m.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return &domain.Reply{Text: text}, nil
}

// Ensure interpretedPlugin implements Plugin.
var _ Plugin = (*interpretedPlugin)(nil)
