package tier

import (
	"context"

	"github.com/xraph/streampass/pass"
)

// Store persists the owner-controlled configuration: the threshold
// schedule and the address allowed to replace it.
type Store interface {
	GetSchedule(ctx context.Context) (Schedule, error)
	SetSchedule(ctx context.Context, s Schedule) error
	GetOwner(ctx context.Context) (pass.Address, error)
	SetOwner(ctx context.Context, owner pass.Address) error
}
