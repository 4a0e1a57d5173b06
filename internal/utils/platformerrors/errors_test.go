package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewErrorClassification(t *testing.T) {
	ctx := context.Background()
	err := NewError(ctx, LayerDomain, ErrorTypeInvalidForkPoint, "fork point beyond latest item", nil, "test-code-1")

	if !IsErrorType(err, ErrorTypeInvalidForkPoint) {
		t.Fatalf("expected invalid_fork_point, got %s", TypeOf(err))
	}
	if IsRetryable(err) {
		t.Fatal("fork point errors must not be retryable")
	}
}

func TestAsErrorPreservesType(t *testing.T) {
	ctx := context.Background()
	inner := NewError(ctx, LayerRepository, ErrorTypeNotFound, "conversation not found", nil, "test-code-2")
	wrapped := AsError(ctx, LayerDomain, inner, "failed to read conversation")

	if !IsErrorType(wrapped, ErrorTypeNotFound) {
		t.Fatalf("wrapping must preserve classification, got %s", TypeOf(wrapped))
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("wrapped error must unwrap to the original")
	}
}

func TestAsErrorDefaultsByLayer(t *testing.T) {
	ctx := context.Background()
	cause := fmt.Errorf("connection refused")

	repoErr := AsError(ctx, LayerRepository, cause, "append failed")
	if !IsErrorType(repoErr, ErrorTypeStorage) {
		t.Fatalf("repository-raised errors default to storage, got %s", TypeOf(repoErr))
	}
	if !IsRetryable(repoErr) {
		t.Fatal("storage errors are retryable")
	}

	domainErr := AsError(ctx, LayerDomain, cause, "unexpected")
	if !IsErrorType(domainErr, ErrorTypeInternal) {
		t.Fatalf("domain-raised errors default to internal, got %s", TypeOf(domainErr))
	}
}

func TestAsErrorNil(t *testing.T) {
	if err := AsError(context.Background(), LayerDomain, nil, "noop"); err != nil {
		t.Fatalf("wrapping nil must return nil, got %v", err)
	}
}
