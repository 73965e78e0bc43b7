package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/npsettle/portquery/internal/synth"
)

// QueryCache stores validated candidate queries keyed by question text and
// schema fingerprint
type QueryCache struct {
	files *FileCache
}

// NewQueryCache wraps a file cache for candidate-query storage
func NewQueryCache(files *FileCache) *QueryCache {
	return &QueryCache{files: files}
}

func queryKey(question, schemaFingerprint string) string {
	return fmt.Sprintf("query|%s|%s", schemaFingerprint, question)
}

// Get returns the cached candidate for the question under the given schema
// version, or ErrMiss.
func (qc *QueryCache) Get(ctx context.Context, question, schemaFingerprint string) (*synth.CandidateQuery, error) {
	data, err := qc.files.Get(ctx, queryKey(question, schemaFingerprint))
	if err != nil {
		return nil, err
	}

	var candidate synth.CandidateQuery
	if err := json.Unmarshal(data, &candidate); err != nil {
		// corrupt entry: drop it and report a miss
		_ = qc.files.Delete(ctx, queryKey(question, schemaFingerprint))

		return nil, ErrMiss
	}

	return &candidate, nil
}

// Put stores a validated candidate using the cache's default TTL
func (qc *QueryCache) Put(ctx context.Context, question, schemaFingerprint string, candidate *synth.CandidateQuery) error {
	data, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate query: %w", err)
	}

	return qc.files.Set(ctx, queryKey(question, schemaFingerprint), data, 0)
}
