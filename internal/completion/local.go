package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"qctrack/internal/qc"
	"qctrack/internal/storage"
	logx "qctrack/pkg/logx"
)

// DefaultCacheKey is the single well-known key holding the installation's local completions.
const DefaultCacheKey = "qc_completions"

// KV is the slice of storage.Store the local cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Update(ctx context.Context, key string, fn storage.UpdateFunc) error
}

// LocalCacheSource reads and appends completions kept in a local key/value store.
//
// The value under the key is a JSON array of Entry. Several writers may share
// it, so it is treated as possibly stale, and malformed entries are dropped
// on read but never rewritten away.
type LocalCacheSource struct {
	kv  KV
	key string
	log logx.Logger
}

func NewLocalCacheSource(kv KV, key string, log logx.Logger) *LocalCacheSource {
	if strings.TrimSpace(key) == "" {
		key = DefaultCacheKey
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LocalCacheSource{kv: kv, key: key, log: log.With(logx.String("cache_key", key))}
}

func (s *LocalCacheSource) Name() qc.Source { return qc.SourceLocal }

func (s *LocalCacheSource) ListCompletions(ctx context.Context, machineID string) ([]qc.CompletionRecord, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil || !ok {
		return nil, err
	}
	all := s.decode(raw)
	out := make([]qc.CompletionRecord, 0, len(all))
	for _, r := range all {
		if r.MachineID == machineID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Record appends rec under the cache key unless a record with the same
// identity is already there. The read-modify-write is atomic per store.
func (s *LocalCacheSource) Record(ctx context.Context, rec qc.CompletionRecord) (added bool, err error) {
	if _, err := EntryOf(rec).Record(qc.SourceLocal); err != nil {
		return false, err
	}
	err = s.kv.Update(ctx, s.key, func(cur []byte, ok bool) ([]byte, error) {
		added = false
		var items []json.RawMessage
		if ok && len(cur) > 0 {
			if err := json.Unmarshal(cur, &items); err != nil {
				return nil, fmt.Errorf("local completion cache is not a JSON array: %w", err)
			}
		}
		for _, r := range s.decodeItems(items) {
			if r.Key() == rec.Key() {
				return nil, nil
			}
		}
		b, err := json.Marshal(EntryOf(rec))
		if err != nil {
			return nil, err
		}
		items = append(items, b)
		added = true
		return json.Marshal(items)
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (s *LocalCacheSource) decode(raw []byte) []qc.CompletionRecord {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log.Warn("local completion cache unreadable, ignoring it", logx.Err(err))
		return nil
	}
	return s.decodeItems(items)
}

func (s *LocalCacheSource) decodeItems(items []json.RawMessage) []qc.CompletionRecord {
	out := make([]qc.CompletionRecord, 0, len(items))
	dropped := 0
	for i, item := range items {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			dropped++
			s.log.Debug("dropping malformed cache entry", logx.Int("index", i), logx.Err(err))
			continue
		}
		r, err := e.Record(qc.SourceLocal)
		if err != nil {
			dropped++
			s.log.Debug("dropping invalid cache entry", logx.Int("index", i), logx.Any("fields", FieldErrors(err)), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	if dropped > 0 {
		s.log.Warn("local completion cache has malformed entries", logx.Int("dropped", dropped), logx.Int("kept", len(out)))
	}
	return out
}
