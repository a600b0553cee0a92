package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Loader loads .rules files for a preset from files and directories and
// can watch them for changes. Files inside a directory are loaded in
// lexical order so rule priority is stable across hosts.
type Loader struct {
	preset  *Preset
	logger  zerolog.Logger
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a loader parsing with the given preset.
func NewLoader(preset *Preset, logger zerolog.Logger) *Loader {
	return &Loader{
		preset: preset,
		logger: logger.With().Str("component", "rules-loader").Str("preset", preset.Name()).Logger(),
	}
}

// LoadFromPaths loads rule sets from a list of file or directory paths.
// The returned slice preserves path order, with directory contents
// expanded in lexical filename order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]*RuleSet, error) {
	var all []*RuleSet

	for _, path := range paths {
		rulesets, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, rulesets...)
	}

	l.logger.Info().
		Int("rulesets", len(all)).
		Int("sources", len(paths)).
		Msg("Rules loaded from paths")

	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]*RuleSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	ruleset, err := l.preset.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return []*RuleSet{ruleset}, nil
}

// loadFromDirectory loads all .rules files from a directory in lexical
// order. Parse errors are fatal here: a broken rule file must not be
// silently skipped, or priority between the remaining files shifts.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]*RuleSet, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rules") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	rulesets := make([]*RuleSet, 0, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ruleset, err := l.preset.ParseFile(filepath.Join(dirPath, name))
		if err != nil {
			return nil, err
		}
		rulesets = append(rulesets, ruleset)
	}

	return rulesets, nil
}

// Watch starts watching paths for rule changes. On change the paths are
// re-loaded as a whole and handed to reloadFn; a parse failure leaves
// the previously applied rules in place.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]*RuleSet) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		watchPath := path
		if !info.IsDir() {
			// Watching the directory catches editors that replace the
			// file instead of writing in place.
			watchPath = filepath.Dir(path)
		}
		if err := watcher.Add(watchPath); err != nil {
			l.logger.Warn().Err(err).Str("path", watchPath).Msg("Failed to watch path")
		}
	}

	go l.processEvents(ctx, paths, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching rule paths")

	return nil
}

// processEvents debounces file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, paths []string, reloadFn func([]*RuleSet) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = l.StopWatching()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".rules") {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Rule file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.triggerReload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload rules")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) triggerReload(ctx context.Context, paths []string, reloadFn func([]*RuleSet) error) error {
	l.logger.Info().Msg("Reloading rules...")

	rulesets, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	if err := reloadFn(rulesets); err != nil {
		return fmt.Errorf("failed to apply reloaded rules: %w", err)
	}

	l.logger.Info().
		Int("rulesets", len(rulesets)).
		Msg("Rules reloaded successfully")

	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}
