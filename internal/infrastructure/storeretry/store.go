// Package storeretry decorates a storage backend with bounded retries on
// transient failures. Only idempotent reads are retried; writes surface the
// first error so a caller never double-appends.
package storeretry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

type RetryStore struct {
	conversation.Store
	backend    string
	maxElapsed time.Duration
}

var _ conversation.Store = (*RetryStore)(nil)

// New wraps inner with read retries capped at maxElapsed per call. backend
// names the wrapped store in the storage error counter.
func New(inner conversation.Store, backend string, maxElapsed time.Duration) *RetryStore {
	return &RetryStore{Store: inner, backend: backend, maxElapsed: maxElapsed}
}

func (s *RetryStore) newBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed
	return backoff.WithContext(bo, ctx)
}

func retryRead[T any](s *RetryStore, ctx context.Context, op func() (T, error)) (T, error) {
	var result T
	err := backoff.Retry(func() error {
		var err error
		result, err = op()
		if err == nil {
			return nil
		}
		if platformerrors.IsRetryable(err) {
			metrics.StorageErrorsTotal.WithLabelValues(s.backend).Inc()
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackoff(ctx))
	return result, err
}

// GetConversation implements conversation.Store.
func (s *RetryStore) GetConversation(ctx context.Context, publicID string, includeDeleted bool) (*conversation.Conversation, error) {
	return retryRead(s, ctx, func() (*conversation.Conversation, error) {
		return s.Store.GetConversation(ctx, publicID, includeDeleted)
	})
}

// ReadItems implements conversation.Store.
func (s *RetryStore) ReadItems(ctx context.Context, conversationID string, rng conversation.ReadRange) ([]*conversation.Item, error) {
	return retryRead(s, ctx, func() ([]*conversation.Item, error) {
		return s.Store.ReadItems(ctx, conversationID, rng)
	})
}

// CountUserTurns implements conversation.Store.
func (s *RetryStore) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	return retryRead(s, ctx, func() (int, error) {
		return s.Store.CountUserTurns(ctx, conversationID)
	})
}

// LatestSeq implements conversation.Store.
func (s *RetryStore) LatestSeq(ctx context.Context, conversationID string) (int64, error) {
	return retryRead(s, ctx, func() (int64, error) {
		return s.Store.LatestSeq(ctx, conversationID)
	})
}

// ListBranches implements conversation.Store.
func (s *RetryStore) ListBranches(ctx context.Context, parentID string) ([]*conversation.Branch, error) {
	return retryRead(s, ctx, func() ([]*conversation.Branch, error) {
		return s.Store.ListBranches(ctx, parentID)
	})
}

// ListSoftDeletedBefore implements conversation.Store.
func (s *RetryStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return retryRead(s, ctx, func() ([]string, error) {
		return s.Store.ListSoftDeletedBefore(ctx, cutoff, limit)
	})
}

// ReadUsage implements conversation.Store.
func (s *RetryStore) ReadUsage(ctx context.Context, conversationID string) ([]*conversation.UsageRecord, error) {
	return retryRead(s, ctx, func() ([]*conversation.UsageRecord, error) {
		return s.Store.ReadUsage(ctx, conversationID)
	})
}
