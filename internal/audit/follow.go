package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Follow streams records appended to the sink at path until ctx is
// cancelled. With fromStart the existing content is emitted first;
// otherwise only records written after Follow starts. Incomplete trailing
// lines are held until their newline arrives; malformed lines are skipped.
//
// The parent directory is watched so a sink that does not exist yet, or
// is rotated away and recreated, is picked up.
func Follow(ctx context.Context, path string, fromStart bool, fn func(Record)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: filepath.Clean(path), fn: fn}
	if !fromStart {
		if info, err := os.Stat(path); err == nil {
			t.offset = info.Size()
		}
	}
	t.drain()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.reset()
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				t.drain()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

type tailer struct {
	path    string
	fn      func(Record)
	offset  int64
	pending []byte
}

func (t *tailer) reset() {
	t.offset = 0
	t.pending = nil
}

// drain reads everything past offset and emits complete lines.
func (t *tailer) drain() {
	f, err := os.Open(t.path)
	if err != nil {
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < t.offset {
		// truncated in place
		t.reset()
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return
	}
	t.offset += int64(len(data))
	t.pending = append(t.pending, data...)

	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			return
		}
		line := t.pending[:i]
		t.pending = t.pending[i+1:]
		if len(line) == 0 {
			continue
		}
		if rec, err := Decode(line); err == nil {
			t.fn(rec)
		}
	}
}
