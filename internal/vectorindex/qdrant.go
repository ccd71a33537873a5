package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
)

const instrumentationName = "github.com/covelabs/docdex/internal/vectorindex"

const maxMessageSize = 50 * 1024 * 1024

// QdrantIndex implements Index against a Qdrant server over gRPC.
type QdrantIndex struct {
	client    *qdrant.Client
	cfg       config.QdrantConfig
	dimension int
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewQdrantIndex connects to Qdrant and verifies the connection.
// dimension is the dense vector width the schema is created with.
func NewQdrantIndex(cfg config.QdrantConfig, dimension int, logger *logging.Logger) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection name required", apperr.ErrInvalidInput)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dense dimension must be positive", apperr.ErrInvalidInput)
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:    client,
		cfg:       cfg,
		dimension: dimension,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: qdrant health check: %v", apperr.ErrUpstreamUnavailable, err)
	}
	logger.Info(ctx, "qdrant connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	return idx, nil
}

// EnsureSchema creates the collection with its named dense and sparse
// vectors and the payload indexes the search filter relies on. When the
// collection already exists its dense parameters are verified and the
// payload indexes re-ensured; a width or distance mismatch is fatal
// rather than silently degrading recall.
func (q *QdrantIndex) EnsureSchema(ctx context.Context) error {
	ctx, span := q.tracer.Start(ctx, "vectorindex.ensure_schema")
	defer span.End()

	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", apperr.ErrUpstreamUnavailable, err)
	}

	if exists {
		if err := q.verifySchema(ctx); err != nil {
			return err
		}
		// Pre-existing collections may predate an index; re-creating an
		// existing payload index is a no-op on the server.
		return q.ensurePayloadIndexes(ctx)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			FieldDense: {
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Dot,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			FieldSparse: {},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection: %v", apperr.ErrUpstreamUnavailable, err)
	}

	if err := q.ensurePayloadIndexes(ctx); err != nil {
		return err
	}

	q.logger.Info(ctx, "vector index schema created",
		zap.String("collection", q.cfg.Collection),
		zap.Int("dimension", q.dimension),
	)
	return nil
}

// payloadIndexRequests lists the payload indexes the search filter relies
// on: keyword indexes for the scoping fields and a word-tokenized
// lowercase text index for keyword biasing.
func (q *QdrantIndex) payloadIndexRequests() []*qdrant.CreateFieldIndexCollection {
	reqs := make([]*qdrant.CreateFieldIndexCollection, 0, 4)
	for _, field := range []string{PayloadCollectionID, PayloadResourceID, PayloadChunkID} {
		reqs = append(reqs, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
	}
	return append(reqs, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.cfg.Collection,
		FieldName:      PayloadText,
		FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
		FieldIndexParams: &qdrant.PayloadIndexParams{
			IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
				TextIndexParams: &qdrant.TextIndexParams{
					Tokenizer: qdrant.TokenizerType_Word,
					Lowercase: qdrant.PtrOf(true),
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
}

func (q *QdrantIndex) ensurePayloadIndexes(ctx context.Context) error {
	for _, req := range q.payloadIndexRequests() {
		if _, err := q.client.CreateFieldIndex(ctx, req); err != nil {
			return fmt.Errorf("%w: creating payload index %s: %v",
				apperr.ErrUpstreamUnavailable, req.FieldName, err)
		}
	}
	return nil
}

func (q *QdrantIndex) verifySchema(ctx context.Context) error {
	info, err := q.client.GetCollectionInfo(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: reading collection info: %v", apperr.ErrUpstreamUnavailable, err)
	}

	params := info.GetConfig().GetParams()
	dense := params.GetVectorsConfig().GetParamsMap().GetMap()[FieldDense]
	if dense == nil {
		return fmt.Errorf("%w: collection %s has no %s vector field",
			apperr.ErrSchemaMismatch, q.cfg.Collection, FieldDense)
	}
	if dense.GetSize() != uint64(q.dimension) {
		return fmt.Errorf("%w: collection %s dense dimension is %d, configured %d",
			apperr.ErrSchemaMismatch, q.cfg.Collection, dense.GetSize(), q.dimension)
	}
	if dense.GetDistance() != qdrant.Distance_Dot {
		return fmt.Errorf("%w: collection %s dense distance is %s, expected Dot",
			apperr.ErrSchemaMismatch, q.cfg.Collection, dense.GetDistance())
	}
	if params.GetSparseVectorsConfig().GetMap()[FieldSparse] == nil {
		return fmt.Errorf("%w: collection %s has no %s sparse field",
			apperr.ErrSchemaMismatch, q.cfg.Collection, FieldSparse)
	}
	return nil
}

// Upsert writes points with write-concern wait so a successful return
// means the points are queryable.
func (q *QdrantIndex) Upsert(ctx context.Context, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}
	ctx, span := q.tracer.Start(ctx, "vectorindex.upsert",
		trace.WithAttributes(attribute.Int("points", len(points))))
	defer span.End()

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(p.ChunkID.String()),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				FieldDense:  qdrant.NewVectorDense(p.Dense),
				FieldSparse: qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				PayloadText:         p.Text,
				PayloadCreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339Nano),
				PayloadFilename:     p.Filename,
				PayloadContentType:  p.ContentType,
				PayloadResourceID:   p.ResourceID.String(),
				PayloadCollectionID: p.CollectionID.String(),
				PayloadChunkID:      p.ChunkID.String(),
			}),
		}
	}

	start := time.Now()
	err := q.withRetry(ctx, "upsert", func(ctx context.Context) error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.Collection,
			Points:         qpoints,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	metrics.ObserveIndexOp("upsert", time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		return err
	}
	metrics.IndexPointsWritten.Add(float64(len(points)))
	return nil
}

// DeleteByResource removes every point of a resource by payload filter.
func (q *QdrantIndex) DeleteByResource(ctx context.Context, resourceID uuid.UUID) error {
	return q.deleteByFilter(ctx, "delete_by_resource", PayloadResourceID, resourceID.String())
}

// DeleteByCollection removes every point of a collection by payload filter.
func (q *QdrantIndex) DeleteByCollection(ctx context.Context, collectionID uuid.UUID) error {
	return q.deleteByFilter(ctx, "delete_by_collection", PayloadCollectionID, collectionID.String())
}

func (q *QdrantIndex) deleteByFilter(ctx context.Context, op, field, value string) error {
	ctx, span := q.tracer.Start(ctx, "vectorindex."+op,
		trace.WithAttributes(attribute.String(field, value)))
	defer span.End()

	start := time.Now()
	err := q.withRetry(ctx, op, func(ctx context.Context) error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.cfg.Collection,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(field, value)},
			}),
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	metrics.ObserveIndexOp(op, time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// buildFilter produces the shared branch filter: collection scope is a
// hard constraint, keywords are soft full-text biases.
func buildFilter(q Query) *qdrant.Filter {
	f := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(PayloadCollectionID, q.CollectionID.String()),
		},
	}
	for _, kw := range q.Keywords {
		f.Should = append(f.Should, qdrant.NewMatchText(PayloadText, kw))
	}
	return f
}

// QueryDense runs the dense branch under the shared filter.
func (q *QdrantIndex) QueryDense(ctx context.Context, query Query) ([]Hit, error) {
	return q.queryBranch(ctx, "query_dense", FieldDense, qdrant.NewQueryDense(query.Dense), query)
}

// QuerySparse runs the sparse branch under the shared filter. An empty
// sparse query vector returns no hits without touching the server.
func (q *QdrantIndex) QuerySparse(ctx context.Context, query Query) ([]Hit, error) {
	if query.Sparse.IsEmpty() {
		return nil, nil
	}
	return q.queryBranch(ctx, "query_sparse", FieldSparse,
		qdrant.NewQuerySparse(query.Sparse.Indices, query.Sparse.Values), query)
}

func (q *QdrantIndex) queryBranch(ctx context.Context, op, using string, vq *qdrant.Query, query Query) ([]Hit, error) {
	ctx, span := q.tracer.Start(ctx, "vectorindex."+op,
		trace.WithAttributes(
			attribute.String("collection_id", query.CollectionID.String()),
			attribute.Int("limit", query.Limit),
		))
	defer span.End()

	var scored []*qdrant.ScoredPoint
	start := time.Now()
	err := q.withRetry(ctx, op, func(ctx context.Context) error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.cfg.Collection,
			Query:          vq,
			Using:          qdrant.PtrOf(using),
			Filter:         buildFilter(query),
			Limit:          qdrant.PtrOf(uint64(query.Limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	metrics.ObserveIndexOp(op, time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hits := make([]Hit, 0, len(scored))
	for _, sp := range scored {
		hit, err := hitFromPoint(sp)
		if err != nil {
			q.logger.Warn(ctx, "skipping malformed index point", zap.Error(err))
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ExistingIDs reports which chunk IDs have points, for reconciliation.
func (q *QdrantIndex) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	ctx, span := q.tracer.Start(ctx, "vectorindex.existing_ids",
		trace.WithAttributes(attribute.Int("ids", len(ids))))
	defer span.End()

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id.String())
	}

	var points []*qdrant.RetrievedPoint
	err := q.withRetry(ctx, "existing_ids", func(ctx context.Context) error {
		res, err := q.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: q.cfg.Collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(false),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	existing := make(map[uuid.UUID]bool, len(points))
	for _, p := range points {
		id, err := uuid.Parse(p.GetId().GetUuid())
		if err != nil {
			continue
		}
		existing[id] = true
	}
	return existing, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// withRetry retries transient failures with exponential backoff.
// Exhausted retries surface as upstream-unavailable so HTTP callers map
// them to a 502; permanent failures go through classify instead.
func (q *QdrantIndex) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := q.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 0; attempt <= q.cfg.RetryAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, q.cfg.RequestTimeout)
		err := fn(opCtx)
		cancel()
		if err == nil {
			if attempt > 0 {
				q.logger.Info(ctx, "index operation recovered after retries",
					zap.String("operation", op),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return classify(op, err)
		}
		if attempt == q.cfg.RetryAttempts {
			break
		}

		metrics.IndexRetriesTotal.WithLabelValues(op).Inc()
		q.logger.Debug(ctx, "retrying index operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	q.logger.Warn(ctx, "index operation failed after retries",
		zap.String("operation", op),
		zap.Int("attempts", q.cfg.RetryAttempts+1),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%w: %s after %d attempts: %v",
		apperr.ErrUpstreamUnavailable, op, q.cfg.RetryAttempts+1, lastErr)
}

// isTransient classifies gRPC failures worth retrying.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// classify maps a permanent gRPC failure into the error taxonomy. Request
// validation failures surface as invalid input rather than as a retryable
// upstream outage.
func classify(op string, err error) error {
	st, ok := status.FromError(err)
	if ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
			return fmt.Errorf("%w: %s: %v", apperr.ErrInvalidInput, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrUpstreamUnavailable, op, err)
}

// hitFromPoint converts a scored point's payload back into a Hit.
func hitFromPoint(sp *qdrant.ScoredPoint) (Hit, error) {
	payload := sp.GetPayload()
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	chunkID, err := uuid.Parse(get(PayloadChunkID))
	if err != nil {
		return Hit{}, fmt.Errorf("parsing chunk_id: %w", err)
	}
	resourceID, err := uuid.Parse(get(PayloadResourceID))
	if err != nil {
		return Hit{}, fmt.Errorf("parsing resource_id: %w", err)
	}
	collectionID, err := uuid.Parse(get(PayloadCollectionID))
	if err != nil {
		return Hit{}, fmt.Errorf("parsing collection_id: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, get(PayloadCreatedAt))

	return Hit{
		ChunkID:      chunkID,
		ResourceID:   resourceID,
		CollectionID: collectionID,
		Text:         get(PayloadText),
		Filename:     get(PayloadFilename),
		ContentType:  get(PayloadContentType),
		CreatedAt:    createdAt,
		Score:        sp.GetScore(),
	}, nil
}

var _ Index = (*QdrantIndex)(nil)
