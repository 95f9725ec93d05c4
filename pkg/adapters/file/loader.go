// Package file loads bot specs from a directory of JSON or YAML documents.
//
// Two layouts are accepted and may be mixed:
//
//	specs/salon.yaml           single version, read from the document
//	specs/salon/2024-01.json   one file per version, named after it
//
// The latest version of a versioned bot is the greatest file name.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/botfactory/pkg/domain"
	"gopkg.in/yaml.v3"
)

var extensions = []string{".json", ".yaml", ".yml"}

type cached struct {
	modTime time.Time
	spec    *domain.BotSpec
}

// Loader implements ports.SpecLoader over a directory. Parsed files are reused until
// their modification time changes.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]cached
}

// NewLoader creates a Loader reading from dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]cached)}
}

// LoadSpec implements ports.SpecLoader.
func (l *Loader) LoadSpec(ctx context.Context, botID, version string) (*domain.BotSpec, error) {
	if botID == "" || strings.ContainsAny(botID, `/\`) || strings.HasPrefix(botID, ".") {
		return nil, fmt.Errorf("%w: invalid bot id %q", domain.ErrSpecNotFound, botID)
	}

	if path, ok := l.find(l.dir, botID); ok {
		spec, err := l.read(path, botID, "")
		if err != nil {
			return nil, err
		}
		if version != "" && spec.Version != version {
			return nil, fmt.Errorf("%w: bot %s version %s", domain.ErrSpecNotFound, botID, version)
		}
		return spec, nil
	}

	botDir := filepath.Join(l.dir, botID)
	if version != "" {
		path, ok := l.find(botDir, version)
		if !ok {
			return nil, fmt.Errorf("%w: bot %s version %s", domain.ErrSpecNotFound, botID, version)
		}
		return l.read(path, botID, version)
	}

	versions, err := l.versions(botDir)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: bot %s", domain.ErrSpecNotFound, botID)
	}
	latest := versions[len(versions)-1]
	path, _ := l.find(botDir, latest)
	return l.read(path, botID, latest)
}

// Bots lists the bot ids available in the directory.
func (l *Loader) Bots() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read specs dir: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() {
			if !hasSpecExt(name) {
				continue
			}
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if !seen[name] {
			seen[name] = true
			ids = append(ids, name)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) find(dir, name string) (string, bool) {
	for _, ext := range extensions {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func (l *Loader) versions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !hasSpecExt(e.Name()) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) read(path, botID, version string) (*domain.BotSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.cache[path]; ok && c.modTime.Equal(info.ModTime()) {
		return c.spec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	spec, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	spec.BotID = botID
	if version != "" {
		spec.Version = version
	}
	l.cache[path] = cached{modTime: info.ModTime(), spec: spec}
	return spec, nil
}

// Parse decodes a spec document. YAML documents are converted to JSON first so both
// formats share the same decoding rules.
func Parse(data []byte, ext string) (*domain.BotSpec, error) {
	if ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("yaml document is not representable as json: %w", err)
		}
		data = converted
	}
	var spec domain.BotSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func hasSpecExt(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
