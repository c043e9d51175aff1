// Package presence tracks which identities are online. Backends are
// interchangeable: every operation is idempotent on all of them.
package presence

import "context"

type Store interface {
	Add(ctx context.Context, identity string) error
	Remove(ctx context.Context, identity string) error
	Count(ctx context.Context) (int, error)
	Members(ctx context.Context) ([]string, error)
	IsOnline(ctx context.Context, identity string) (bool, error)
}
