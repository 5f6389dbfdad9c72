package port

import "context"

type IdempotencyStore interface {
	// Acquire claims a key for idempotency check, returns false if already claimed
	Acquire(ctx context.Context, key string) (bool, error)

	// Release frees a key so the request may be retried
	Release(ctx context.Context, key string) error
}

type AttemptLimiter interface {
	// Attempt reserves an attempt slot for key and returns the count in the
	// current window. allowed is false once the count exceeds the cap.
	Attempt(ctx context.Context, key string) (count int, allowed bool, err error)

	// Reset clears recorded attempts
	Reset(ctx context.Context, key string) error
}
