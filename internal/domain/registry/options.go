package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithSendBuffer sets the [BACKPRESSURE] threshold.
// It defines the outbound queue capacity of every connection created by the hub.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.sendBuffer = size
		}
	}
}

// WithSendTimeout defines the grace window a high-priority frame
// waits on a saturated queue before evicting older frames.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.sendTimeout = d
		}
	}
}
