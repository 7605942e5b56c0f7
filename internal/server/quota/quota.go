// Package quota tracks stored bytes per owner and refuses reservations that
// would exceed the owner's limit.
package quota

import (
	"context"
)

// Store reserves and releases byte usage per owner. Reserve returns
// common.ErrorQuotaExceeded when used+n would be above limit. A limit of
// zero or less disables the check.
type Store interface {
	Reserve(ctx context.Context, owner string, n, limit int64) error
	Release(ctx context.Context, owner string, n int64) error
	Usage(ctx context.Context, owner string) (int64, error)
}
