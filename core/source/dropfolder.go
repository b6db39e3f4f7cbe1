package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"tunesync/core/match"
	"tunesync/logger"
)

// WaitForFile watches a local drop directory until an audio file matching
// the track title appears, and returns its path. Used when the debrid
// backend materializes downloads into a mounted folder: the watcher resolves
// a pending job the moment the file lands instead of waiting for the next
// HTTP poll. Returns ctx.Err() when the caller gives up.
func WaitForFile(ctx context.Context, dir, title string) (string, error) {
	// The file may already be there from an earlier attempt.
	if path, ok := scanDir(dir, title); ok {
		return path, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("dropfolder: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return "", fmt.Errorf("dropfolder: watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("dropfolder: watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			base := filepath.Base(event.Name)
			if IsAudioFile(base) && match.Titles(base, title) {
				return event.Name, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("dropfolder: watcher closed")
			}
			logger.Warn("dropfolder watcher error", logger.ErrorField(err))
		}
	}
}

func scanDir(dir, title string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsAudioFile(e.Name()) && match.Titles(e.Name(), title) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}
