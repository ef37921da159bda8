package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "secondbrain"

// ChromemIndex keeps the vector index inside the process, persisted under
// the data directory. An empty dataDir keeps everything in memory, which is
// what tests use.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embedFn    chromem.EmbeddingFunc
}

func NewChromemIndex(dataDir string, embedder Embedder) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dataDir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(filepath.Join(dataDir, "vectors"), false)
		if err != nil {
			return nil, storeErr("open persistent db", err)
		}
	}

	embedFn := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	})

	idx := &ChromemIndex{db: db, embedFn: embedFn}
	if idx.collection, err = idx.openCollection(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *ChromemIndex) openCollection() (*chromem.Collection, error) {
	if col := i.db.GetCollection(chromemCollection, i.embedFn); col != nil {
		return col, nil
	}
	col, err := i.db.CreateCollection(chromemCollection, nil, i.embedFn)
	if err != nil {
		return nil, storeErr("create collection", err)
	}
	return col, nil
}

func (i *ChromemIndex) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	stored := 0
	for _, chunk := range chunks {
		doc := chromem.Document{
			ID:       chunk.ID,
			Content:  chunk.Text,
			Metadata: chunkMetadata(chunk),
		}
		if err := i.collection.AddDocument(ctx, doc); err != nil {
			return stored, storeErr(fmt.Sprintf("add document %s", chunk.ID), err)
		}
		stored++
	}
	return stored, nil
}

func (i *ChromemIndex) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k <= 0 || k > count {
		k = count
	}

	// chromem can still reject nResults despite the Count check when
	// documents race in and out; step k down until the query sticks.
	var (
		results []chromem.Result
		err     error
	)
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = i.collection.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, storeErr("query", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, chunkFromMetadata(res.ID, res.Content, res.Similarity, res.Metadata))
	}
	return chunks, nil
}

func (i *ChromemIndex) ClearAll(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.db.DeleteCollection(chromemCollection); err != nil {
		return storeErr("delete collection", err)
	}
	col, err := i.openCollection()
	if err != nil {
		return err
	}
	i.collection = col
	return nil
}
