package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "kb"

// RedisStore persists reference entries as one hash per category and run
// records as an append-only stream with a per-fingerprint list index.
//
//	<prefix>:entries:<category>  HASH  key -> Entry JSON
//	<prefix>:runs                STREAM of {run_id, fingerprint, record}
//	<prefix>:runs:<fingerprint>  LIST  Record JSON, oldest first
//	<prefix>:run-ids             HASH  run id -> 1, one entry per stored run
//
// Appends only ever add to the stream and list, so concurrent writers never
// contend for a lock.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entriesKey(c Category) string {
	return fmt.Sprintf("%s:entries:%s", s.prefix, c)
}

func (s *RedisStore) streamKey() string { return s.prefix + ":runs" }

func (s *RedisStore) runIDsKey() string { return s.prefix + ":run-ids" }

func (s *RedisStore) historyKey(fingerprint string) string {
	return fmt.Sprintf("%s:runs:%s", s.prefix, fingerprint)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Put implements Writer.
func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := s.client.HSet(ctx, s.entriesKey(e.Category), e.Key, data).Err(); err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", ErrUnavailable, e.Category, e.Key, err)
	}
	return nil
}

// Get implements Reader.
func (s *RedisStore) Get(ctx context.Context, c Category, key string) (Entry, bool, error) {
	raw, err := s.client.HGet(ctx, s.entriesKey(c), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: get %s/%s: %w", ErrUnavailable, c, key, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry %s/%s: %w", c, key, err)
	}
	return e, true, nil
}

// List implements Reader.
func (s *RedisStore) List(ctx context.Context, c Category) ([]Entry, error) {
	all, err := s.client.HGetAll(ctx, s.entriesKey(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrUnavailable, c, err)
	}
	out := make([]Entry, 0, len(all))
	for key, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s/%s: %w", c, key, err)
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// appendScript claims the run id and writes the stream entry and history
// index atomically. It returns 0 when the run was already recorded.
//
//	KEYS: run-ids hash, stream, history list
//	ARGV: run id, fingerprint, outcome, record JSON
var appendScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], 1) == 0 then
  return 0
end
redis.call("XADD", KEYS[2], "*", "run_id", ARGV[1], "fingerprint", ARGV[2], "outcome", ARGV[3], "record", ARGV[4])
redis.call("RPUSH", KEYS[3], ARGV[4])
return 1
`)

// Append implements Appender. The run id claim, stream entry and history
// index are written by one script, so a retried append for the same run is
// a no-op.
func (s *RedisStore) Append(ctx context.Context, rec domain.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	keys := []string{s.runIDsKey(), s.streamKey(), s.historyKey(rec.Fingerprint)}
	err = appendScript.Run(ctx, s.client, keys, rec.RunID, rec.Fingerprint, string(rec.Outcome), string(data)).Err()
	if err != nil {
		return fmt.Errorf("%w: append %s: %w", ErrUnavailable, rec.RunID, err)
	}
	return nil
}

// History implements Reader.
func (s *RedisStore) History(ctx context.Context, fingerprint string, limit int) ([]domain.RunRecord, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raws, err := s.client.LRange(ctx, s.historyKey(fingerprint), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: history %s: %w", ErrUnavailable, fingerprint, err)
	}
	out := make([]domain.RunRecord, 0, len(raws))
	for _, raw := range raws {
		var rec domain.RunRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	slices.Reverse(out)
	return out, nil
}

// StreamLen returns the number of records in the run stream.
func (s *RedisStore) StreamLen(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.streamKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}
