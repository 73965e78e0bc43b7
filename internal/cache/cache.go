// Package cache stores synthesized queries on disk so repeated questions
// skip the generation call. Entries are keyed by question text and schema
// fingerprint; a schema reload therefore invalidates every cached query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Entry carries cached data with its expiry metadata
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileCache is a TTL file cache: one .data and one .meta file per key
type FileCache struct {
	directory  string
	defaultTTL time.Duration
	mu         sync.RWMutex
}

// NewFileCache creates the cache directory and returns the cache
func NewFileCache(directory string, defaultTTL time.Duration) (*FileCache, error) {
	if strings.HasPrefix(directory, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}

		directory = filepath.Join(home, directory[2:])
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{directory: directory, defaultTTL: defaultTTL}, nil
}

// Get retrieves data for a key, returning ErrMiss when absent or expired
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metaData, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return nil, ErrMiss
	}

	var entry Entry
	if err := json.Unmarshal(metaData, &entry); err != nil {
		return nil, ErrMiss
	}

	if time.Now().After(entry.ExpiresAt) {
		os.Remove(c.dataPath(key))
		os.Remove(c.metaPath(key))

		return nil, ErrMiss
	}

	data, err := os.ReadFile(c.dataPath(key))
	if err != nil {
		return nil, ErrMiss
	}

	return data, nil
}

// Set stores data under the key. A zero TTL uses the cache default.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	entry := Entry{
		Key:       key,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	if err := os.WriteFile(c.dataPath(key), data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache data: %w", err)
	}

	metaData, err := json.Marshal(entry)
	if err != nil {
		os.Remove(c.dataPath(key))

		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}

	if err := os.WriteFile(c.metaPath(key), metaData, 0o600); err != nil {
		os.Remove(c.dataPath(key))

		return fmt.Errorf("failed to write cache metadata: %w", err)
	}

	return nil
}

// Delete removes a key; absent keys are not an error
func (c *FileCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	os.Remove(c.dataPath(key))
	os.Remove(c.metaPath(key))

	return nil
}

// Clear removes every entry
func (c *FileCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(c.directory, entry.Name()))
		}
	}

	return nil
}

// Cleanup removes expired entries
func (c *FileCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".meta") {
			continue
		}

		metaPath := filepath.Join(c.directory, dirEntry.Name())

		metaData, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(metaData, &entry); err != nil {
			continue
		}

		if now.After(entry.ExpiresAt) {
			hash := strings.TrimSuffix(dirEntry.Name(), ".meta")

			os.Remove(filepath.Join(c.directory, hash+".data"))
			os.Remove(metaPath)
		}
	}

	return nil
}

func (c *FileCache) dataPath(key string) string {
	return filepath.Join(c.directory, hashKey(key)+".data")
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.directory, hashKey(key)+".meta")
}

// hashKey creates a safe filename from a cache key
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])[:16]
}
