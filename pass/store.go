package pass

import "context"

// Store persists passes and active-pass pointers.
type Store interface {
	NextPassID(ctx context.Context) (ID, error)
	CreatePass(ctx context.Context, p *Pass) error
	GetPass(ctx context.Context, passID ID) (*Pass, error)
	UpdatePass(ctx context.Context, p *Pass) error
	// ListPassesByOwner returns owned passes in ascending id order.
	ListPassesByOwner(ctx context.Context, owner Address) ([]*Pass, error)
	CountPasses(ctx context.Context) (uint64, error)

	// GetActivePass returns None when the subscriber has no active pass.
	GetActivePass(ctx context.Context, subscriber Address) (ID, error)
	SetActivePass(ctx context.Context, subscriber Address, passID ID) error
}
