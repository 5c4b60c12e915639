package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// FileSink writes the state mapping to a JSON file for out-of-process
// consumption. Writes go through a temp file and rename so a reader never
// observes a partially-written mapping.
type FileSink struct {
	path string
}

func configuredFileSink() *FileSink {
	f := &FileSink{}
	path := lflag.String("states-path", "/data/neso_octowatch/states.json", "Path of the published states JSON file")

	lflag.Do(func() {
		f.path = *path
	})

	return f
}

// NewFileSink builds a sink writing to a specific path, primarily for tests.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Validate ensures the configuration is valid.
func (f *FileSink) Validate() error {
	if f.path == "" {
		return fmt.Errorf("states-path is required")
	}
	return nil
}

// Publish writes the mapping as indented UTF-8 JSON.
func (f *FileSink) Publish(ctx context.Context, states types.States) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create states directory: %w", err)
	}

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal states: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".states-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp states file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write states: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp states file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod states file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace states file: %w", err)
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"published states to file",
		slog.String("path", f.path),
		slog.Int("keys", len(states)),
	)
	return nil
}

func (f *FileSink) Close() error { return nil }
