package http_test

import (
	"context"

	"github.com/aponysus/restream/observe"
)

func observeTimeline() (context.Context, *observe.TimelineCapture) {
	return observe.CaptureTimeline(context.Background())
}
