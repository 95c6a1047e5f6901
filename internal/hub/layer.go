package hub

import (
	"context"
	"log/slog"

	"github.com/pztrick/television/internal/domain"
)

// Layer carries encoded broadcast frames between server instances.
//
// Publish sends a frame to every subscribed instance. Subscribe blocks until ctx
// is done, calling deliver for each frame received, including frames this
// instance published.
type Layer interface {
	Publish(ctx context.Context, group domain.Group, frame []byte, closeAfter bool) error
	Subscribe(ctx context.Context, deliver func(group domain.Group, frame []byte, closeAfter bool)) error
}

// DeliverFunc adapts a Directory to a Layer subscription callback.
func (d *Directory) DeliverFunc() func(group domain.Group, frame []byte, closeAfter bool) {
	return func(group domain.Group, frame []byte, closeAfter bool) {
		if _, err := d.Deliver(group, frame, closeAfter); err != nil {
			slog.Error("Failed to deliver broadcast", "group", group, "error", err)
		}
	}
}
