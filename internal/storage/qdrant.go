// Package storage owns the persistent vector collection and exposes
// the add/search/update/delete contract over chunk records.
package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/dbaxter/docrag/internal/domain"
)

// Store wraps the Qdrant client with collection management.
// All mutation of the collection goes through its methods; Qdrant
// applies each upsert atomically, so concurrent readers never observe
// a half-written record.
type Store struct {
	client     *qdrant.Client
	collection string
	host       string
	port       int
}

// New creates a Qdrant-backed store and validates connectivity.
// It performs a health check with retry on startup and fails fast if
// Qdrant is unreachable. Opening is idempotent: the collection is
// created on first use and reused afterwards.
func New(host string, port int, collection string) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeStore, "create qdrant client", err)
	}

	s := &Store{
		client:     client,
		collection: collection,
		host:       host,
		port:       port,
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, domain.WrapError(domain.ErrCodeStore, "qdrant health check", fmt.Errorf("%w: %v", ErrUnreachable, err))
	}

	return s, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *Store) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist yet:
// 1536-dimension vectors, cosine distance, payload indexes on the
// filterable fields. Safe to call multiple times.
func (s *Store) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrCodeStore, "list collections", err)
	}

	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return domain.WrapError(domain.ErrCodeStore, "create collection", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return domain.WrapError(domain.ErrCodeStore, "create payload indexes", err)
	}

	return nil
}

// createPayloadIndexes indexes the fields metadata filters match on.
// Without these indexes filtered search degrades badly.
func (s *Store) createPayloadIndexes(ctx context.Context) error {
	fields := []string{
		"record_id", // Lookup and delete by logical ID
		"source",    // Filter and group chunks by originating file
		"title",     // Filter by document title
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("index field %s: %w", field, err)
		}
	}

	return nil
}

// Close closes the Qdrant client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Add upserts one record per chunk. The three slices must have equal
// length. Record IDs are derived from metadata as
// "{source}_{chunk_index}", so re-adding the same source and index
// overwrites the existing record.
//
// Records are written in batches of 100; a single batch is applied
// atomically by Qdrant but a multi-batch add is not transactional, so
// a mid-add failure can leave earlier batches written.
func (s *Store) Add(ctx context.Context, chunks []string, embeddings [][]float32, metadata []domain.ChunkMetadata) error {
	if len(chunks) != len(embeddings) || len(chunks) != len(metadata) {
		return domain.WrapError(domain.ErrCodeValidation,
			fmt.Sprintf("add: %d chunks, %d embeddings, %d metadata", len(chunks), len(embeddings), len(metadata)),
			ErrLengthMismatch)
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i := range chunks {
		if err := metadata[i].Validate(); err != nil {
			return err
		}
		if len(embeddings[i]) != VectorDimension {
			return domain.WrapError(domain.ErrCodeValidation,
				fmt.Sprintf("add: record %d has %d dimensions, expected %d", i, len(embeddings[i]), VectorDimension),
				ErrDimensionMismatch)
		}
		points[i] = s.buildPoint(metadata[i].RecordID(), chunks[i], embeddings[i], metadata[i])
	}

	const batchSize = 100
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))
		if err := s.upsertWithRetry(ctx, points[i:end]); err != nil {
			return domain.WrapError(domain.ErrCodeStore,
				fmt.Sprintf("upsert batch %d-%d", i, end), err)
		}
	}

	return nil
}

func (s *Store) buildPoint(recordID, text string, embedding []float32, meta domain.ChunkMetadata) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointUUID(recordID)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			"record_id":    recordID,
			"content":      text,
			"source":       meta.Source,
			"chunk_index":  meta.ChunkIndex,
			"title":        meta.Title,
			"last_updated": meta.LastUpdated.UTC().Format(time.RFC3339),
		}),
	}
}

// upsertWithRetry performs an upsert with exponential backoff on
// transport failures.
func (s *Store) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(newBackoff(), ctx))
}

// Search returns the k records nearest to vector, ordered by ascending
// cosine distance (0 identical, 2 opposite). filter restricts the
// candidate set to records whose payload fields equal the given values
// before ranking; a nil filter matches everything.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]domain.SearchMatch, error) {
	if k <= 0 {
		return nil, domain.NewError(domain.ErrCodeValidation, fmt.Sprintf("search: result count %d must be positive", k))
	}
	if len(vector) != VectorDimension {
		return nil, domain.WrapError(domain.ErrCodeValidation,
			fmt.Sprintf("search: query has %d dimensions, expected %d", len(vector), VectorDimension),
			ErrDimensionMismatch)
	}

	conditions, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         conditions,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeStore, "search", err)
	}

	matches := make([]domain.SearchMatch, 0, len(results))
	for _, result := range results {
		matches = append(matches, domain.SearchMatch{
			Text:     result.Payload["content"].GetStringValue(),
			Metadata: payloadMetadata(result.Payload),
			// Qdrant reports cosine similarity; convert to distance.
			Distance: 1 - float64(result.Score),
		})
	}

	return matches, nil
}

// buildFilter accepts only the indexed payload fields; an unknown key
// is an error rather than a silently unfiltered result set.
func buildFilter(filter map[string]string) (*qdrant.Filter, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	indexed := []string{"record_id", "source", "title"}
	for key := range filter {
		if !slices.Contains(indexed, key) {
			return nil, domain.NewError(domain.ErrCodeValidation,
				fmt.Sprintf("filter: unknown field %q, expected one of %v", key, indexed))
		}
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for _, field := range indexed {
		if value, ok := filter[field]; ok {
			must = append(must, qdrant.NewMatch(field, value))
		}
	}
	return &qdrant.Filter{Must: must}, nil
}

// Update replaces a record's text, vector and metadata by logical ID.
// Qdrant upserts: a missing ID is created rather than rejected. Callers
// needing strict replace semantics should GetByID first.
func (s *Store) Update(ctx context.Context, id, text string, embedding []float32, meta domain.ChunkMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	if len(embedding) != VectorDimension {
		return domain.WrapError(domain.ErrCodeValidation,
			fmt.Sprintf("update %s: vector has %d dimensions, expected %d", id, len(embedding), VectorDimension),
			ErrDimensionMismatch)
	}

	point := s.buildPoint(id, text, embedding, meta)
	if err := s.upsertWithRetry(ctx, []*qdrant.PointStruct{point}); err != nil {
		return domain.WrapError(domain.ErrCodeStore, fmt.Sprintf("update %s", id), err)
	}
	return nil
}

// GetByID returns the record's text and metadata, or a NOT_FOUND error.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.ChunkRecord, error) {
	results, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointUUID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeStore, fmt.Sprintf("get %s", id), err)
	}
	if len(results) == 0 {
		return nil, domain.WrapError(domain.ErrCodeNotFound, fmt.Sprintf("record %s", id), domain.ErrRecordNotFound)
	}

	payload := results[0].Payload
	return &domain.ChunkRecord{
		ID:       payload["record_id"].GetStringValue(),
		Text:     payload["content"].GetStringValue(),
		Metadata: payloadMetadata(payload),
	}, nil
}

// Delete removes a record by logical ID. Deleting an unknown ID is a
// no-op: it reports false without error. The existence check and the
// delete are separate calls, so under concurrent deletes of the same
// ID more than one caller can observe true; the flag is best-effort.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	// Qdrant's delete does not report how many points it removed, so
	// existence is checked first to honor the zero-effect contract.
	results, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointUUID(id))},
	})
	if err != nil {
		return false, domain.WrapError(domain.ErrCodeStore, fmt.Sprintf("delete %s", id), err)
	}
	if len(results) == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(id))),
	})
	if err != nil {
		return false, domain.WrapError(domain.ErrCodeStore, fmt.Sprintf("delete %s", id), err)
	}
	return true, nil
}

// DeleteBySource removes every chunk ingested from one source file and
// reports how many were removed.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	records, err := s.scroll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("source", source)},
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeStore, fmt.Sprintf("delete source %s", source), err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]*qdrant.PointId, len(records))
	for i, record := range records {
		ids[i] = qdrant.NewIDUUID(pointUUID(record.ID))
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeStore, fmt.Sprintf("delete source %s", source), err)
	}
	return len(records), nil
}

// Clear removes every record, leaving an empty, usable collection.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return domain.WrapError(domain.ErrCodeStore, "clear collection", err)
	}
	return s.EnsureCollection(ctx)
}

// ListAll returns every record's text and metadata, scrolling through
// the collection in pages.
func (s *Store) ListAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	records, err := s.scroll(ctx, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeStore, "list records", err)
	}
	return records, nil
}

func (s *Store) scroll(ctx context.Context, filter *qdrant.Filter) ([]domain.ChunkRecord, error) {
	var records []domain.ChunkRecord
	var offset *qdrant.PointId
	seen := make(map[string]struct{})

	batchSize := uint32(100)
	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}

		for _, result := range results {
			payload := result.Payload
			id := payload["record_id"].GetStringValue()
			// The scroll offset is inclusive, so each page after the
			// first starts with the point that ended the previous one.
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			records = append(records, domain.ChunkRecord{
				ID:       id,
				Text:     payload["content"].GetStringValue(),
				Metadata: payloadMetadata(payload),
			})
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	return records, nil
}

// payloadMetadata rebuilds chunk metadata from a point payload.
func payloadMetadata(payload map[string]*qdrant.Value) domain.ChunkMetadata {
	lastUpdated, err := time.Parse(time.RFC3339, payload["last_updated"].GetStringValue())
	if err != nil {
		lastUpdated = time.Time{}
	}
	return domain.ChunkMetadata{
		Source:      payload["source"].GetStringValue(),
		ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
		Title:       payload["title"].GetStringValue(),
		LastUpdated: lastUpdated,
	}
}
