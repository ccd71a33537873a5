package retrieval

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/embeddings"
	"github.com/covelabs/docdex/internal/filestore"
	"github.com/covelabs/docdex/internal/ingest"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/permissions"
	"github.com/covelabs/docdex/internal/store"
	"github.com/covelabs/docdex/internal/vectorindex"
)

type fakeDense struct{ dim int }

func (f *fakeDense) embed(text string) []float32 {
	vec := make([]float32, f.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%f.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func (f *fakeDense) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

func (f *fakeDense) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func (f *fakeDense) Dimension() int { return f.dim }
func (f *fakeDense) Close() error   { return nil }

type fixture struct {
	store   *store.Store
	index   *vectorindex.MemoryIndex
	dense   *fakeDense
	sparse  *embeddings.SparseEncoder
	files   *filestore.MemoryStore
	service *Service

	collection *store.Collection
	member     *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewTestLogger().Logger

	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	engine := permissions.NewEngine(st, nil)

	index := vectorindex.NewMemoryIndex()
	dense := &fakeDense{dim: 16}
	sparse := embeddings.NewSparseEncoder()

	files := filestore.NewMemoryStore()
	cfg := config.SearchConfig{Limit: 10, PrefetchLimit: 50, RRFK: 60}
	svc := NewService(st, engine, dense, sparse, index, files, cfg, 0, logger)

	col := &store.Collection{Name: "search-" + uuid.NewString()[:8]}
	require.NoError(t, st.CreateCollection(ctx, col))

	member, err := st.GetOrCreateUserByEmail(ctx, uuid.NewString()[:8]+"-mem@example.com", false)
	require.NoError(t, err)
	_, err = st.UpsertMembership(ctx, member.ID, col.ID, store.RoleMember)
	require.NoError(t, err)

	return &fixture{
		store:      st,
		index:      index,
		dense:      dense,
		sparse:     sparse,
		files:      files,
		service:    svc,
		collection: col,
		member:     member,
	}
}

// indexChunk writes a chunk row plus its index point, the state ingestion
// leaves behind.
func (fx *fixture) indexChunk(t *testing.T, text, filename string) *store.Resource {
	t.Helper()
	ctx := context.Background()

	res := &store.Resource{
		CollectionID: fx.collection.ID,
		Filename:     filename,
		ContentType:  "text/plain",
		IsProcessed:  true,
	}
	require.NoError(t, fx.store.CreateResource(ctx, res))
	require.NoError(t, fx.files.Put(ctx, ingest.ObjectKey(fx.collection.ID, res.ID, filename),
		strings.NewReader(text), "text/plain"))

	chunk := &store.TextChunk{ResourceID: res.ID, Text: text, Order: 0}
	require.NoError(t, fx.store.CreateChunks(ctx, nil, []*store.TextChunk{chunk}))

	require.NoError(t, fx.index.Upsert(ctx, []vectorindex.ChunkPoint{{
		ChunkID:      chunk.ID,
		ResourceID:   res.ID,
		CollectionID: fx.collection.ID,
		Text:         text,
		Filename:     filename,
		ContentType:  "text/plain",
		CreatedAt:    chunk.CreatedAt,
		Dense:        fx.dense.embed(text),
		Sparse:       fx.sparse.Encode(text),
	}}))
	return res
}

func TestSearchRanksMatchingChunkFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	hamster := fx.indexChunk(t, "Harry the hamster is a cute little hamster.", "hamster.txt")
	fx.indexChunk(t, "Quarterly revenue grew across all regions.", "finance.txt")
	fx.indexChunk(t, "The deployment pipeline builds container images.", "ci.txt")

	docs, err := fx.service.Search(ctx, fx.member, fx.collection.ID, "cute hamster", nil)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, hamster.ID, docs[0].Metadata.ResourceID)
	assert.Contains(t, docs[0].Text, "hamster")
	assert.Greater(t, docs[0].Score, float32(0))
	assert.True(t, strings.HasPrefix(docs[0].Metadata.URL, "memory://"))
}

func TestSearchRequiresView(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.service.Search(ctx, nil, fx.collection.ID, "anything", nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	outsider, err := fx.store.GetOrCreateUserByEmail(ctx, uuid.NewString()[:8]+"-out@example.com", false)
	require.NoError(t, err)
	_, err = fx.service.Search(ctx, outsider, fx.collection.ID, "anything", nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = fx.service.Search(ctx, fx.member, uuid.New(), "anything", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	fx := newFixture(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := fx.service.Search(context.Background(), fx.member, fx.collection.ID, q, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "query %q", q)
	}
}

func TestSearchDropsDeletedResources(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doomed := fx.indexChunk(t, "chunk for a resource that gets deleted", "gone.txt")
	kept := fx.indexChunk(t, "chunk for a resource that stays deleted adjacent", "kept.txt")

	// Delete the row but leave the point behind, the window the index
	// cleanup task has not closed yet.
	require.NoError(t, fx.store.DeleteResource(ctx, doomed.ID))

	docs, err := fx.service.Search(ctx, fx.member, fx.collection.ID, "resource deleted chunk", nil)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for _, d := range docs {
		assert.Equal(t, kept.ID, d.Metadata.ResourceID)
	}
}

func TestSearchScopedToCollection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.indexChunk(t, "alpha beta gamma", "in.txt")

	// A point in another collection never surfaces.
	otherCol := &store.Collection{Name: "other-" + uuid.NewString()[:8]}
	require.NoError(t, fx.store.CreateCollection(ctx, otherCol))
	otherRes := &store.Resource{CollectionID: otherCol.ID, Filename: "out.txt", ContentType: "text/plain"}
	require.NoError(t, fx.store.CreateResource(ctx, otherRes))
	require.NoError(t, fx.index.Upsert(ctx, []vectorindex.ChunkPoint{{
		ChunkID:      uuid.New(),
		ResourceID:   otherRes.ID,
		CollectionID: otherCol.ID,
		Text:         "alpha beta gamma",
		Dense:        fx.dense.embed("alpha beta gamma"),
		Sparse:       fx.sparse.Encode("alpha beta gamma"),
	}}))

	docs, err := fx.service.Search(ctx, fx.member, fx.collection.ID, "alpha beta", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, fx.collection.ID, docs[0].Metadata.CollectionID)
}

func TestSearchUsesOriginalURLForScrapedPages(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res := &store.Resource{
		CollectionID: fx.collection.ID,
		Filename:     "page",
		ContentType:  "text/html",
		URL:          "https://example.com/page",
		IsProcessed:  true,
	}
	require.NoError(t, fx.store.CreateResource(ctx, res))
	chunk := &store.TextChunk{ResourceID: res.ID, Text: "scraped page body text", Order: 0}
	require.NoError(t, fx.store.CreateChunks(ctx, nil, []*store.TextChunk{chunk}))
	require.NoError(t, fx.index.Upsert(ctx, []vectorindex.ChunkPoint{{
		ChunkID:      chunk.ID,
		ResourceID:   res.ID,
		CollectionID: fx.collection.ID,
		Text:         chunk.Text,
		Dense:        fx.dense.embed(chunk.Text),
		Sparse:       fx.sparse.Encode(chunk.Text),
	}}))

	docs, err := fx.service.Search(ctx, fx.member, fx.collection.ID, "scraped page body", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://example.com/page", docs[0].Metadata.URL)
}

func TestSearchLimit(t *testing.T) {
	fx := newFixture(t)
	fx.service.cfg.Limit = 2

	for i := 0; i < 5; i++ {
		fx.indexChunk(t, "repeated topic words everywhere "+uuid.NewString(), "doc.txt")
	}

	docs, err := fx.service.Search(context.Background(), fx.member, fx.collection.ID, "repeated topic words", nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
