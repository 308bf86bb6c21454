package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pdfchat/internal/ai"
)

const (
	fieldEmbedding   = "embedding"
	fieldDocumentID  = "document_id"
	fieldPageNumber  = "page_number"
	fieldText        = "text"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
	fieldDistance    = "distance"

	defaultEFConstruction = 200
	defaultM              = 16
	deleteBatchSize       = 500
)

type RedisConfig struct {
	IndexName  string
	KeyPrefix  string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// RedisIndex stores chunk vectors as hashes under a RediSearch HNSW index.
// The client must speak RESP2 so FT.SEARCH replies are flat arrays.
type RedisIndex struct {
	client *redis.Client
	cfg    RedisConfig
}

func NewRedisIndex(client *redis.Client, cfg RedisConfig) *RedisIndex {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RedisIndex{client: client, cfg: cfg}
}

// EnsureIndex creates the search index when it does not exist yet.
func (r *RedisIndex) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if _, err := r.client.Do(ctx, "FT.INFO", r.cfg.IndexName).Result(); err == nil {
		return nil
	}

	_, err := r.client.Do(ctx, "FT.CREATE", r.cfg.IndexName,
		"ON", "HASH",
		"PREFIX", "1", r.cfg.KeyPrefix,
		"SCHEMA",
		fieldEmbedding, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(r.cfg.Dimensions),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldDocumentID, "TAG",
		fieldPageNumber, "NUMERIC",
		fieldChunkIndex, "NUMERIC",
		fieldTotalChunks, "NUMERIC",
		fieldText, "TEXT",
	).Result()
	if err != nil {
		return ai.WrapProviderError(ai.ProviderIndex, "create index", err)
	}
	return nil
}

func (r *RedisIndex) Upsert(ctx context.Context, records []Record) error {
	return writeBatches(ctx, records, r.cfg.BatchSize, r.writeBatch)
}

func (r *RedisIndex) writeBatch(ctx context.Context, batch []Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	pipe := r.client.Pipeline()
	for _, rec := range batch {
		if r.cfg.Dimensions > 0 && len(rec.Values) != r.cfg.Dimensions {
			return fmt.Errorf("record %s has %d dimensions, index expects %d", rec.ID, len(rec.Values), r.cfg.Dimensions)
		}
		key := r.cfg.KeyPrefix + rec.ID
		pipe.HSet(ctx, key,
			fieldEmbedding, encodeVector(rec.Values),
			fieldDocumentID, rec.Metadata.DocumentID,
			fieldPageNumber, rec.Metadata.PageNumber,
			fieldText, rec.Metadata.Text,
			fieldChunkIndex, rec.Metadata.ChunkIndex,
			fieldTotalChunks, rec.Metadata.TotalChunks,
		)
		pipe.SAdd(ctx, r.documentSetKey(rec.Metadata.DocumentID), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return ai.WrapProviderError(ai.ProviderIndex, "upsert", err)
	}
	return nil
}

func (r *RedisIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	prefilter := "*"
	if filter.DocumentID != "" {
		prefilter = fmt.Sprintf("(@%s:{%s})", fieldDocumentID, escapeTag(filter.DocumentID))
	}
	query := fmt.Sprintf("%s=>[KNN %d @%s $vec AS %s]", prefilter, topK, fieldEmbedding, fieldDistance)

	reply, err := r.client.Do(ctx, "FT.SEARCH", r.cfg.IndexName, query,
		"PARAMS", "2", "vec", encodeVector(vector),
		"SORTBY", fieldDistance, "ASC",
		"RETURN", "5", fieldDocumentID, fieldPageNumber, fieldText, fieldChunkIndex, fieldDistance,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, ai.WrapProviderError(ai.ProviderIndex, "query", err)
	}

	matches, err := parseSearchReply(reply, r.cfg.KeyPrefix)
	if err != nil {
		return nil, ai.WrapProviderError(ai.ProviderIndex, "query", err)
	}
	sortMatches(matches)
	return matches, nil
}

func (r *RedisIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	setKey := r.documentSetKey(documentID)
	keys, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return ai.WrapProviderError(ai.ProviderIndex, "delete", err)
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return ai.WrapProviderError(ai.ProviderIndex, "delete", err)
		}
	}
	if err := r.client.Del(ctx, setKey).Err(); err != nil {
		return ai.WrapProviderError(ai.ProviderIndex, "delete", err)
	}
	return nil
}

// Ping checks the connection and that the index exists.
func (r *RedisIndex) Ping(ctx context.Context) error {
	if _, err := r.client.Do(ctx, "FT.INFO", r.cfg.IndexName).Result(); err != nil {
		return ai.WrapProviderError(ai.ProviderIndex, "ping", err)
	}
	return nil
}

func (r *RedisIndex) documentSetKey(documentID string) string {
	// outside KeyPrefix so the search index never sees it
	return r.cfg.IndexName + ":docs:" + documentID
}

// encodeVector packs the vector as little-endian FLOAT32, the layout
// RediSearch expects for both stored fields and query parameters.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// escapeTag escapes every punctuation and whitespace character, which the
// TAG query syntax would otherwise treat as separators.
func escapeTag(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c > 127 {
			b.WriteRune(c)
			continue
		}
		b.WriteByte('\\')
		b.WriteRune(c)
	}
	return b.String()
}

// parseSearchReply reads a RESP2 FT.SEARCH reply:
// [total, key1, [field, value, ...], key2, [...], ...].
func parseSearchReply(reply any, keyPrefix string) ([]Match, error) {
	values, ok := reply.([]any)
	if !ok {
		return nil, errors.New("unexpected FT.SEARCH reply type")
	}
	if len(values) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, (len(values)-1)/2)
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]any)
		if !ok {
			continue
		}

		m := Match{ID: strings.TrimPrefix(key, keyPrefix)}
		distance := 1.0
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value := toString(fields[j+1])
			switch name {
			case fieldDocumentID:
				m.DocumentID = value
			case fieldPageNumber:
				m.PageNumber, _ = strconv.Atoi(value)
			case fieldText:
				m.Text = value
			case fieldDistance:
				if d, err := strconv.ParseFloat(value, 64); err == nil {
					distance = d
				}
			}
		}
		m.Score = 1 - distance
		matches = append(matches, m)
	}
	return matches, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
