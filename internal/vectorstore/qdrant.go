package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

var qdrantTracer = otel.Tracer("ragd.vectorstore.qdrant")

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: localhost.
	Host string
	// Port is the gRPC port (not the 6333 REST port). Default: 6334.
	Port   int
	APIKey string
	UseTLS bool

	Collection string
	// VectorSize is the dimension used when creating the collection.
	VectorSize uint64

	// RequestTimeout bounds each call. Default: 30s.
	RequestTimeout time.Duration
	// MaxMessageSize is the gRPC message limit in bytes. Default: 50MB.
	MaxMessageSize int
	// ScrollPageSize is the number of points fetched per scroll page.
	// Default: 256.
	ScrollPageSize uint32
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.ScrollPageSize == 0 {
		c.ScrollPageSize = 256
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d (must be 1-65535)", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// qdrantAPI is the subset of *qdrant.Client used here.
type qdrantAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	ScrollAndOffset(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Close() error
}

// QdrantIndex implements Index on a Qdrant collection.
type QdrantIndex struct {
	client qdrantAPI
	config QdrantConfig
	logger *logging.Logger
}

// NewQdrantIndex connects to Qdrant and verifies the connection with a
// health check.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger *logging.Logger) (*QdrantIndex, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := newQdrantIndex(client, cfg, logger)

	idx.logger.Info(ctx, "connecting to qdrant",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	if err := idx.Health(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func newQdrantIndex(client qdrantAPI, cfg QdrantConfig, logger *logging.Logger) *QdrantIndex {
	if logger == nil {
		logger = logging.Nop()
	}
	return &QdrantIndex{client: client, config: cfg, logger: logger}
}

func (q *QdrantIndex) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, context.CancelFunc) {
	ctx, span := qdrantTracer.Start(ctx, name, trace.WithAttributes(
		append(attrs, attribute.String("collection", q.config.Collection))...))
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	return ctx, span, cancel
}

// fail records err on span and classifies connection errors.
func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return fmt.Errorf("%s: %w: %s", op, ErrConnectionFailed, st.Message())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Health performs a health check on the Qdrant connection.
func (q *QdrantIndex) Health(ctx context.Context) error {
	ctx, span, cancel := q.start(ctx, "QdrantIndex.Health")
	defer cancel()
	defer span.End()

	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fail(span, "qdrant health check", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance and a
// keyword index on the dataset key.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	ctx, span, cancel := q.start(ctx, "QdrantIndex.EnsureCollection")
	defer cancel()
	defer span.End()

	exists, err := q.client.CollectionExists(ctx, q.config.Collection)
	if err != nil {
		return fail(span, "checking collection", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	created := err == nil
	// Losing a creation race still needs the dataset index below; the
	// winner may not have built it yet.
	if err != nil && !alreadyExists(err) {
		return fail(span, "creating collection", err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.config.Collection,
		FieldName:      KeyDatasetID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil && !alreadyExists(err) {
		return fail(span, "creating dataset index", err)
	}

	if created {
		q.logger.Info(ctx, "created qdrant collection",
			zap.String("collection", q.config.Collection),
			zap.Uint64("vector_size", q.config.VectorSize),
		)
	}
	return nil
}

func alreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.AlreadyExists
}

// Upsert writes all records in one request with wait=true.
func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, int(q.config.VectorSize)); err != nil {
		return err
	}

	ctx, span, cancel := q.start(ctx, "QdrantIndex.Upsert", attribute.Int("points", len(records)))
	defer cancel()
	defer span.End()

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = toPoint(r)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.config.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fail(span, "upserting points", err)
	}
	return nil
}

// Search runs a filtered nearest-neighbour query.
func (q *QdrantIndex) Search(ctx context.Context, datasetID string, vector []float32, k int) ([]Hit, error) {
	if datasetID == "" {
		return nil, ErrMissingDataset
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	ctx, span, cancel := q.start(ctx, "QdrantIndex.Search", attribute.Int("k", k))
	defer cancel()
	defer span.End()

	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         datasetFilter(datasetID),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fail(span, "querying points", err)
	}

	hits := make([]Hit, len(res))
	for i, p := range res {
		hits[i] = Hit{Record: fromPayload(pointID(p.GetId()), p.GetPayload()), Score: p.GetScore()}
	}
	span.SetAttributes(attribute.Int("results", len(hits)))
	return hits, nil
}

// DeleteDataset deletes by filter with wait=true.
func (q *QdrantIndex) DeleteDataset(ctx context.Context, datasetID string) error {
	if datasetID == "" {
		return ErrMissingDataset
	}

	ctx, span, cancel := q.start(ctx, "QdrantIndex.DeleteDataset")
	defer cancel()
	defer span.End()

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.config.Collection,
		Points:         qdrant.NewPointsSelectorFilter(datasetFilter(datasetID)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fail(span, "deleting points", err)
	}
	return nil
}

// ListDatasets scrolls the whole collection, reading only the dataset key.
func (q *QdrantIndex) ListDatasets(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := q.scroll(ctx, "QdrantIndex.ListDatasets", nil, qdrant.NewWithPayloadInclude(KeyDatasetID),
		func(p *qdrant.RetrievedPoint) {
			if id := p.GetPayload()[KeyDatasetID].GetStringValue(); id != "" {
				seen[id] = struct{}{}
			}
		})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// ListChunks scrolls every point of one dataset.
func (q *QdrantIndex) ListChunks(ctx context.Context, datasetID string) ([]Record, error) {
	if datasetID == "" {
		return nil, ErrMissingDataset
	}

	var records []Record
	err := q.scroll(ctx, "QdrantIndex.ListChunks", datasetFilter(datasetID), qdrant.NewWithPayload(true),
		func(p *qdrant.RetrievedPoint) {
			records = append(records, fromPayload(pointID(p.GetId()), p.GetPayload()))
		})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// scroll visits every page until Qdrant returns no next offset.
func (q *QdrantIndex) scroll(ctx context.Context, name string, filter *qdrant.Filter, payload *qdrant.WithPayloadSelector, visit func(*qdrant.RetrievedPoint)) error {
	ctx, span := qdrantTracer.Start(ctx, name, trace.WithAttributes(attribute.String("collection", q.config.Collection)))
	defer span.End()

	var offset *qdrant.PointId
	pages := 0
	for {
		reqCtx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
		points, next, err := q.client.ScrollAndOffset(reqCtx, &qdrant.ScrollPoints{
			CollectionName: q.config.Collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(q.config.ScrollPageSize),
			WithPayload:    payload,
		})
		cancel()
		if err != nil {
			return fail(span, "scrolling points", err)
		}
		pages++
		for _, p := range points {
			visit(p)
		}
		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}
	span.SetAttributes(attribute.Int("pages", pages))
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client == nil {
		return nil
	}
	return q.client.Close()
}

func datasetFilter(datasetID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(KeyDatasetID, datasetID)},
	}
}

func toPoint(r Record) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(r.ID),
		Vectors: qdrant.NewVectors(r.Vector...),
		Payload: map[string]*qdrant.Value{
			KeyChunk:     qdrant.NewValueString(r.Chunk),
			KeyDatasetID: qdrant.NewValueString(r.DatasetID),
			KeySource:    qdrant.NewValueString(r.Source),
			KeyPosition:  qdrant.NewValueInt(int64(r.Position)),
		},
	}
}

// fromPayload reads a record back. Points written by older clients may
// lack source and position.
func fromPayload(id string, payload map[string]*qdrant.Value) Record {
	r := Record{
		ID:        id,
		Chunk:     payload[KeyChunk].GetStringValue(),
		DatasetID: payload[KeyDatasetID].GetStringValue(),
		Source:    payload[KeySource].GetStringValue(),
	}
	if v := payload[KeyPosition]; v != nil {
		switch v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			r.Position = int(v.GetIntegerValue())
		case *qdrant.Value_DoubleValue:
			r.Position = int(v.GetDoubleValue())
		}
	}
	return r
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

var _ Index = (*QdrantIndex)(nil)
