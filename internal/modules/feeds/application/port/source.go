package port

import (
	"context"

	realtime "propertyFeedWs/internal/modules/realtime/domain"
)

// Source produces the next domain event of a kind, from an upstream system or a generator.
type Source interface {
	Fetch(ctx context.Context, kind realtime.Kind) (realtime.DomainEvent, error)
}
