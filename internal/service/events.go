package service

import (
	"context"

	"github.com/iliyamo/medhome/internal/queue"
)

// EventPublisher delivers domain events.  Publishing is best effort: a
// failure is logged by the caller and never fails the operation.
type EventPublisher interface {
	PublishDeviceClaimed(ctx context.Context, ev queue.DeviceClaimedEvent) error
	PublishVitalsRecorded(ctx context.Context, ev queue.VitalsRecordedEvent) error
}
