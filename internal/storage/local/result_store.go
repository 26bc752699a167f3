// Package local writes heatmap results to the local filesystem as JSON documents.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local result store.
type Config struct {
	// BaseDir is the directory results are written under.
	BaseDir string `mapstructure:"dir"`
}

// ResultStore writes one file per lookup key.
type ResultStore struct {
	baseDir string
}

// New creates the base directory if needed and verifies it is writable.
func New(cfg Config) (*ResultStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, errors.New("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &ResultStore{baseDir: cfg.BaseDir}, nil
}

// PutJSON writes v as indented JSON to <key>.json and returns a file:// URI.
// Characters outside [A-Za-z0-9_-] in key are replaced so URLs and other
// raw inputs still map to a flat file name.
func (s *ResultStore) PutJSON(ctx context.Context, key string, v any) (string, error) {
	name := FileName(key)
	if name == "" {
		return "", errors.New("key is required")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	return s.PutObject(ctx, name+".json", &buf)
}

// PutObject writes data to path below the base directory and returns a file:// URI.
func (s *ResultStore) PutObject(ctx context.Context, path string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}

	fullPath := filepath.Join(s.baseDir, path)
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return "file://" + fullPath, nil
}

// FileName maps key onto a safe file stem.
func FileName(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, key)
}
