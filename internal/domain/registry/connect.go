package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (SERVICE/TRANSPORT)
// State is mutated only through the Hub (identity, room) and the heartbeat
// monitor (liveness); transports only pump frames in and out.
type Connector interface {
	GetID() uuid.UUID
	State() ConnState

	MarkAlive()
	MarkProbed() (wasAlive bool)

	Send(frame model.Frame) bool // Thread-safe send with backpressure handling
	Probe() bool
	Outbound() <-chan model.Frame
	Probes() <-chan struct{}
	Done() <-chan struct{}
	Close() // Terminate connection and release resources

	bind(userID, username string)
	setRoom(room string)
}

// ConnState is a point-in-time copy of a connection's state record.
type ConnState struct {
	ID            uuid.UUID
	RemoteAddr    string
	Authenticated bool
	UserID        string
	Username      string
	Room          string
	Alive         bool
	LastPongAt    time.Time
	ConnectedAt   time.Time
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id          uuid.UUID
	remoteAddr  string
	connectedAt time.Time

	mu            sync.RWMutex
	authenticated bool
	userID        string
	username      string
	room          string
	alive         bool
	lastPongAt    time.Time

	ctx         context.Context
	cancelFn    context.CancelFunc
	sendMu      sync.Mutex
	sendCh      chan model.Frame
	probeCh     chan struct{}
	sendTimeout time.Duration
	closeOnce   sync.Once // [PROTECTION]

	droppedCount uint64 // [ATOMIC_FIELD]
}

// NewConnector creates the state record for a freshly accepted transport.
// Default state: unauthenticated, no room, alive.
func NewConnector(ctx context.Context, remoteAddr string, bufferSize int, sendTimeout time.Duration) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	now := time.Now()

	return &connect{
		id:          uuid.New(),
		remoteAddr:  remoteAddr,
		connectedAt: now,
		alive:       true,
		lastPongAt:  now,
		ctx:         childCtx,
		cancelFn:    cancel,
		sendCh:      make(chan model.Frame, bufferSize),
		probeCh:     make(chan struct{}, 1),
		sendTimeout: sendTimeout,
	}
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() uuid.UUID { return c.id }

func (c *connect) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ConnState{
		ID:            c.id,
		RemoteAddr:    c.remoteAddr,
		Authenticated: c.authenticated,
		UserID:        c.userID,
		Username:      c.username,
		Room:          c.room,
		Alive:         c.alive,
		LastPongAt:    c.lastPongAt,
		ConnectedAt:   c.connectedAt,
	}
}

func (c *connect) bind(userID, username string) {
	c.mu.Lock()
	c.authenticated = true
	c.userID = userID
	c.username = username
	c.mu.Unlock()
}

func (c *connect) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// MarkAlive records any client-originated liveness signal.
func (c *connect) MarkAlive() {
	c.mu.Lock()
	c.alive = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

// MarkProbed flips the connection to AWAITING_PONG and reports whether it was
// ALIVE before. A false result means the previous probe went unanswered.
func (c *connect) MarkProbed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	was := c.alive
	c.alive = false
	return was
}

// Send attempts to push a frame into the outbound queue.
// If the queue is full, it tries to evict one lower priority frame to make room.
// Frames that stay queued keep their relative order.
func (c *connect) Send(frame model.Frame) bool {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	// 2. [SINGLE_WRITER] Pushes are serialized so an eviction pass sees a stable tail.
	// A best-effort frame never waits behind a sender stuck on a saturated queue.
	if frame.Priority <= model.PriorityLow {
		if !c.sendMu.TryLock() {
			if len(c.sendCh) == cap(c.sendCh) {
				atomic.AddUint64(&c.droppedCount, 1)
				return false
			}
			c.sendMu.Lock()
		}
	} else {
		c.sendMu.Lock()
	}
	defer c.sendMu.Unlock()

	// 3. [PRIMARY_DELIVERY] Fast path: there is room in the queue.
	select {
	case c.sendCh <- frame:
		return true
	default:
	}

	// 4. [BACKPRESSURE_THRESHOLD] Queue saturated.
	return c.handleBackpressure(frame)
}

// handleBackpressure manages full buffers. Must be called with sendMu held.
func (c *connect) handleBackpressure(frame model.Frame) bool {
	// Best-effort notifications are shed first; they are never queued behind a stall.
	if frame.Priority <= model.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- frame:
		return true
	case <-timer.C:
	}

	// One frame is lost either way: the oldest lower-priority one, or this one.
	atomic.AddUint64(&c.droppedCount, 1)
	return c.evictLower(frame)
}

// evictLower drains the queue, removes the oldest frame with a lower priority
// than frame and queues the rest back in order with frame at the tail.
// The writer only ever takes from the head, so draining concurrently with it
// keeps FIFO order, and the refill always fits.
func (c *connect) evictLower(frame model.Frame) bool {
	queued := make([]model.Frame, 0, cap(c.sendCh))
drain:
	for range cap(c.sendCh) {
		select {
		case f := <-c.sendCh:
			queued = append(queued, f)
		default:
			break drain
		}
	}

	victim := -1
	for i, f := range queued {
		if f.Priority < frame.Priority {
			victim = i
			break
		}
	}
	if victim >= 0 {
		queued = append(queued[:victim], queued[victim+1:]...)
		queued = append(queued, frame)
	}

	for _, f := range queued {
		c.sendCh <- f
	}
	return victim >= 0
}

// Probe asks the transport to emit a liveness probe (websocket ping).
func (c *connect) Probe() bool {
	if c.ctx.Err() != nil {
		return false
	}

	select {
	case c.probeCh <- struct{}{}:
		return true
	default:
		// A probe is already pending; one is enough.
		return true
	}
}

func (c *connect) Outbound() <-chan model.Frame { return c.sendCh }

func (c *connect) Probes() <-chan struct{} { return c.probeCh }

func (c *connect) Done() <-chan struct{} { return c.ctx.Done() }

// Dropped returns how many frames were shed under backpressure.
func (c *connect) Dropped() uint64 { return atomic.LoadUint64(&c.droppedCount) }

// Close terminates the session. The transport observes Done() and closes the socket.
func (c *connect) Close() {
	// [IDEMPOTENCY_SHIELD]
	// Called concurrently by the heartbeat monitor (eviction), the hub (shutdown)
	// and the transport handler (defer). The send channel is never closed so a
	// late Send can not panic; it simply observes the cancelled context.
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
