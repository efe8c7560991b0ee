package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/mvp-joe/ast-index/internal/storage"
)

const (
	fuzzyBatchSize = 1000
	fuzzyMaxEdits  = 2
)

// fuzzyIndex is an in-memory bleve index over symbol names for one index
// generation. Documents are keyed by symbol id.
type fuzzyIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

func buildFuzzyMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	nameMapping := bleve.NewTextFieldMapping()
	nameMapping.Analyzer = "keyword"
	nameMapping.Store = false
	nameMapping.Index = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name", nameMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func newFuzzyIndex(ctx context.Context, r *storage.Reader) (*fuzzyIndex, error) {
	index, err := bleve.NewMemOnly(buildFuzzyMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	batch := index.NewBatch()
	n := 0
	err = r.AllSymbolNames(ctx, func(id, name, _ string) error {
		if n%fuzzyBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		n++
		if err := batch.Index(id, map[string]interface{}{"name": strings.ToLower(name)}); err != nil {
			return fmt.Errorf("failed to add symbol %s to batch: %w", id, err)
		}
		if batch.Size() >= fuzzyBatchSize {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = index.NewBatch()
		}
		return nil
	})
	if err == nil && batch.Size() > 0 {
		if err = index.Batch(batch); err != nil {
			err = fmt.Errorf("failed to execute final batch: %w", err)
		}
	}
	if err != nil {
		index.Close()
		return nil, err
	}
	return &fuzzyIndex{index: index}, nil
}

// Search returns symbol ids whose name is within two edits of term,
// best first.
func (f *fuzzyIndex) Search(term string, limit int) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, nil
	}

	q := bleve.NewFuzzyQuery(strings.ToLower(term))
	q.SetField("name")
	q.SetFuzziness(fuzzyMaxEdits)

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := f.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search failed: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (f *fuzzyIndex) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.index.Close()
	}
}

// fuzzyFor returns the fuzzy index of the snapshot r reads, building it on
// first use. Indexes are keyed by generation, so any commit invalidates them.
func (e *Engine) fuzzyFor(ctx context.Context, r *storage.Reader) (*fuzzyIndex, error) {
	gen, err := r.Metadata(ctx, storage.MetaGeneration)
	if err != nil {
		return nil, err
	}
	if idx, ok := e.fuzzy.Get(gen); ok {
		return idx, nil
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if idx, ok := e.fuzzy.Get(gen); ok {
		return idx, nil
	}
	idx, err := newFuzzyIndex(ctx, r)
	if err != nil {
		return nil, err
	}
	e.fuzzy.Set(gen, idx)
	return idx, nil
}
