package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
)

const redisPrefix = "scheduled_task:"

// Redis persists tasks as JSON values under one key per task, with an id set
// as the index.
type Redis struct {
	client *redis.Client
}

func OpenRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

func redisKey(id uint64) string { return fmt.Sprintf("%s%d", redisPrefix, id) }

const redisIndex = redisPrefix + "ids"

func (s *Redis) LoadAll(ctx context.Context) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, redisIndex).Result()
	if err != nil {
		return nil, err
	}
	var recs []Record
	for _, id := range ids {
		data, err := s.client.Get(ctx, redisPrefix+id).Bytes()
		if err != nil {
			continue // index entry without a value; skip
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (s *Redis) put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(rec.ID), data, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, redisIndex, rec.ID).Err()
}

func (s *Redis) Insert(ctx context.Context, rec Record) error { return s.put(ctx, rec) }

func (s *Redis) Update(ctx context.Context, rec Record) error {
	n, err := s.client.Exists(ctx, redisKey(rec.ID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return s.put(ctx, rec)
}

func (s *Redis) Delete(ctx context.Context, id uint64) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, redisIndex, id).Err()
}

func (s *Redis) Close() error { return s.client.Close() }
