package usecase

import (
	"context"

	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/domain"
)

type BroadcastUseCase struct {
	broadcaster port.Broadcaster
}

func NewBroadcastUseCase(b port.Broadcaster) *BroadcastUseCase {
	return &BroadcastUseCase{broadcaster: b}
}

func (uc *BroadcastUseCase) Execute(ctx context.Context, evt *domain.NormalizedEvent) int {
	if evt == nil {
		return 0
	}
	return uc.broadcaster.Broadcast(ctx, evt)
}
