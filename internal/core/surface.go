package core

import (
	"context"
	"time"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Viewport exposes the currently rendered rows of the host's conversation view.
type Viewport interface {
	// Rows returns every rendered candidate row in document order.
	Rows(ctx context.Context) ([]models.RowNode, error)
	// Width returns the total viewport width used for side-panel filtering.
	Width(ctx context.Context) (float64, error)
}

// ScrollDriver abstracts the host's scrollable conversation region.
type ScrollDriver interface {
	Offset(ctx context.Context) (float64, error)
	// ScrollBy moves the region by delta pixels and returns the new offset.
	ScrollBy(ctx context.Context, delta float64) (float64, error)
	ScrollTo(ctx context.Context, offset float64) error
	AtTop(ctx context.Context) (bool, error)
	AtBottom(ctx context.Context) (bool, error)
	// Settle returns once the host has had a fair chance to render rows
	// exposed by the last scroll.
	Settle(ctx context.Context) error
}

// Surface is a host conversation view: its rendered rows plus the ability to
// locate the scrollable region that holds them.
type Surface interface {
	Viewport
	// FindContainer returns the scroll driver for the conversation region,
	// or a ContainerNotFound CaptureError.
	FindContainer(ctx context.Context) (ScrollDriver, error)
}

// SettleDelay waits d or until ctx is done. Hosts that give no render
// completion signal implement Settle with it.
func SettleDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
