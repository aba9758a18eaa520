package valkey

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/mastrvec/internal/db"
)

// scanCount is the SCAN COUNT hint and the DEL fan-out per round-trip.
const scanCount = 500

// HSet sets hash fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HSetMulti stores multiple hashes in a single DoMulti round-trip.
// The first failing key is reported; the others may have been written.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(items))
	for _, item := range items {
		cmd := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds = append(cmds, cmd.Build())
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", items[i].Key, err)}
		}
	}
	return nil
}

// HGetAll returns all fields of a hash; a missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return m, nil
}

// Del deletes a key.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.do(ctx, s.b().Del().Key(key).Build()).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// DelPrefix removes every key starting with prefix and returns how many were deleted.
func (s *Store) DelPrefix(ctx context.Context, prefix string) (int, error) {
	var cursor uint64
	deleted := 0

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(prefix + "*").Count(scanCount).Build()
		entry, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return deleted, &db.Error{Op: db.OpScan, Err: err}
		}
		if len(entry.Elements) > 0 {
			n, err := s.do(ctx, s.b().Del().Key(entry.Elements...).Build()).AsInt64()
			if err != nil {
				return deleted, &db.Error{Op: db.OpDel, Err: err}
			}
			deleted += int(n)
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.do(ctx, s.b().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return count > 0, nil
}
