package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const keyPrefix = "pdpage:"

// PageStateRepository implements repository.PageStateRepository on Redis.
// Each session is one JSON value whose TTL is refreshed on every write.
type PageStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPageStateRepository creates a Redis-backed page state store.
func NewPageStateRepository(client *redis.Client, ttl time.Duration) *PageStateRepository {
	return &PageStateRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the snapshot for a session.
func (r *PageStateRepository) Get(ctx context.Context, sessionID string) (_ domain.PageState, err error) {
	ctx, end := database.TraceCommand(ctx, "GetPageState", keyPrefix+sessionID)
	defer func() { end(ignoreNotFound(err)) }()

	data, err := r.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PageState{}, apperrors.NotFound("page session", sessionID)
		}
		return domain.PageState{}, fmt.Errorf("redis get page state: %w", err)
	}
	return decode(data)
}

// Save writes the snapshot unconditionally.
func (r *PageStateRepository) Save(ctx context.Context, state domain.PageState) (err error) {
	ctx, end := database.TraceCommand(ctx, "SavePageState", keyPrefix+state.SessionID)
	defer func() { end(err) }()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal page state: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+state.SessionID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set page state: %w", err)
	}
	return nil
}

// SaveIfVersion writes the snapshot inside a WATCH transaction so a
// concurrent writer between the version check and the write aborts it.
func (r *PageStateRepository) SaveIfVersion(ctx context.Context, state domain.PageState, expected int64) (err error) {
	key := keyPrefix + state.SessionID
	ctx, end := database.TraceCommand(ctx, "SavePageStateIfVersion", key)
	defer func() { end(ignoreConflict(err)) }()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal page state: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.Conflict("page session " + state.SessionID + " no longer exists")
			}
			return fmt.Errorf("redis get page state: %w", err)
		}

		stored, err := decode(current)
		if err != nil {
			return err
		}
		if stored.MountID != state.MountID || stored.Version != expected {
			return apperrors.Conflict("page session " + state.SessionID + " was modified concurrently")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return apperrors.Conflict("page session " + state.SessionID + " was modified concurrently")
	case errors.Is(err, apperrors.ErrConflict):
		return err
	default:
		return fmt.Errorf("redis save page state: %w", err)
	}
}

// Delete removes a session.
func (r *PageStateRepository) Delete(ctx context.Context, sessionID string) (err error) {
	ctx, end := database.TraceCommand(ctx, "DeletePageState", keyPrefix+sessionID)
	defer func() { end(err) }()

	if err := r.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis del page state: %w", err)
	}
	return nil
}

func decode(data []byte) (domain.PageState, error) {
	var state domain.PageState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.PageState{}, fmt.Errorf("unmarshal page state: %w", err)
	}
	return state, nil
}

// ignoreNotFound and ignoreConflict keep expected outcomes off span errors.
func ignoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

func ignoreConflict(err error) error {
	if errors.Is(err, apperrors.ErrConflict) {
		return nil
	}
	return err
}
