package auth

import "context"

// TokenStorer is the persistent side of the token service. The device store
// satisfies it; it never reports errors, a failed read is simply a miss.
type TokenStorer interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Remove(ctx context.Context, key string)
}
