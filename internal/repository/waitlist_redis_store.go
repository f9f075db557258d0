package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-admission-api/internal/models"
)

const (
	waitlistKeyPrefix = "waitlist:course:"
	waitlistIndexKey  = "waitlist:courses"
)

// RedisWaitlistStore keeps each course's waitlist as one JSON document so a Put replaces it atomically.
type RedisWaitlistStore struct {
	client *redis.Client
}

// NewRedisWaitlistStore constructs the store.
func NewRedisWaitlistStore(client *redis.Client) *RedisWaitlistStore {
	return &RedisWaitlistStore{client: client}
}

// Get loads the course document; a missing key is an empty waitlist.
func (s *RedisWaitlistStore) Get(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	raw, err := s.client.Get(ctx, waitlistKey(courseID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get waitlist %s: %w", courseID, err)
	}
	return decodeWaitlist(raw)
}

// Put writes the document and maintains the course index in one MULTI/EXEC.
func (s *RedisWaitlistStore) Put(ctx context.Context, courseID string, entries []models.WaitlistEntry) error {
	var payload []byte
	if len(entries) > 0 {
		var err error
		payload, err = encodeWaitlist(entries)
		if err != nil {
			return err
		}
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if payload == nil {
			pipe.Del(ctx, waitlistKey(courseID))
			pipe.SRem(ctx, waitlistIndexKey, courseID)
			return nil
		}
		pipe.Set(ctx, waitlistKey(courseID), payload, 0)
		pipe.SAdd(ctx, waitlistIndexKey, courseID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put waitlist %s: %w", courseID, err)
	}
	return nil
}

// CourseIDs lists indexed courses in lexical order.
func (s *RedisWaitlistStore) CourseIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, waitlistIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list waitlist courses: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func waitlistKey(courseID string) string {
	return waitlistKeyPrefix + courseID
}

func encodeWaitlist(entries []models.WaitlistEntry) ([]byte, error) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal waitlist: %w", err)
	}
	return payload, nil
}

func decodeWaitlist(raw []byte) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal waitlist: %w", err)
	}
	return entries, nil
}
