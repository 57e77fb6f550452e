package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

// cachedDraft is the stored value; the key is kept alongside the ref so a
// hit can be checked against the lookup that produced it.
type cachedDraft struct {
	Email   string          `json:"email"`
	ActorID string          `json:"actor_id"`
	Ref     domain.DraftRef `json:"ref"`
}

type draftCache struct {
	client redislib.Cmdable
	prefix string
	ttl    time.Duration
}

// NewDraftCache creates a Redis-backed draft index. Entries live for ttl,
// which should match the draft window.
func NewDraftCache(client redislib.Cmdable, ttl time.Duration) repository.DraftCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &draftCache{
		client: client,
		prefix: "draft:",
		ttl:    ttl,
	}
}

func (c *draftCache) FindRecentDraft(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error) {
	result, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var entry cachedDraft
	if err := json.Unmarshal(result, &entry); err != nil {
		return nil, err
	}
	key = key.Normalize()
	if entry.Email != key.Email || entry.ActorID != key.ActorID || entry.Ref.ID == "" {
		return nil, nil
	}
	if entry.Ref.UpdatedAt.Before(since) {
		return nil, nil
	}
	return &entry.Ref, nil
}

func (c *draftCache) Remember(ctx context.Context, key domain.DraftKey, ref domain.DraftRef) error {
	if ref.ID == "" {
		return domain.ErrInvalidPayload
	}
	key = key.Normalize()
	payload, err := json.Marshal(cachedDraft{Email: key.Email, ActorID: key.ActorID, Ref: ref})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), payload, c.ttl).Err()
}

func (c *draftCache) Forget(ctx context.Context, key domain.DraftKey) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *draftCache) key(k domain.DraftKey) string {
	k = k.Normalize()
	return fmt.Sprintf("%s%s:%s", c.prefix, k.ActorID, k.Email)
}
