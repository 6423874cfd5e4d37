package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
)

const DefaultHeartbeatInterval = 30 * time.Second

// ExpireFunc is invoked from the heartbeat goroutine when a connection missed a probe.
type ExpireFunc func(conn registry.Connector)

// PresenceMonitor runs one heartbeat per authenticated connection.
//
// [STATE_MACHINE] ALIVE -> (tick) -> AWAITING_PONG -> (pong) -> ALIVE
//
//	AWAITING_PONG -> (tick) -> TERMINATED
type PresenceMonitor struct {
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	beats    map[uuid.UUID]*heartbeat
	onExpire ExpireFunc
}

type heartbeat struct {
	stopCh chan struct{}
	once   sync.Once
}

func (hb *heartbeat) stop() {
	hb.once.Do(func() { close(hb.stopCh) })
}

func NewPresenceMonitor(interval time.Duration, logger *slog.Logger) *PresenceMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &PresenceMonitor{
		interval: interval,
		logger:   logger,
		beats:    make(map[uuid.UUID]*heartbeat),
	}
}

// OnExpire sets the termination callback. Must be called before the first Start.
func (m *PresenceMonitor) OnExpire(fn ExpireFunc) {
	m.mu.Lock()
	m.onExpire = fn
	m.mu.Unlock()
}

// Start arms the heartbeat of conn. A second Start for the same connection is a no-op.
func (m *PresenceMonitor) Start(conn registry.Connector) {
	m.mu.Lock()
	if _, ok := m.beats[conn.GetID()]; ok {
		m.mu.Unlock()
		return
	}
	hb := &heartbeat{stopCh: make(chan struct{})}
	m.beats[conn.GetID()] = hb
	m.mu.Unlock()

	go m.run(conn, hb)
}

// Stop cancels the heartbeat of connID. Safe to call any number of times.
func (m *PresenceMonitor) Stop(connID uuid.UUID) {
	m.mu.Lock()
	hb, ok := m.beats[connID]
	delete(m.beats, connID)
	m.mu.Unlock()

	if ok {
		hb.stop()
	}
}

// Touch records a client liveness signal (protocol pong or JSON ping).
func (m *PresenceMonitor) Touch(conn registry.Connector) {
	conn.MarkAlive()
}

// Active is the number of armed heartbeats.
func (m *PresenceMonitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.beats)
}

func (m *PresenceMonitor) run(conn registry.Connector, hb *heartbeat) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-hb.stopCh:
			return
		case <-conn.Done():
			m.Stop(conn.GetID())
			return
		case <-ticker.C:
			if conn.MarkProbed() {
				conn.Probe()
				continue
			}
			m.expire(conn)
			return
		}
	}
}

func (m *PresenceMonitor) expire(conn registry.Connector) {
	m.Stop(conn.GetID())

	st := conn.State()
	m.logger.Info("HEARTBEAT_EXPIRED",
		"conn_id", st.ID,
		"user_id", st.UserID,
		"last_pong_at", st.LastPongAt,
	)

	m.mu.Lock()
	fn := m.onExpire
	m.mu.Unlock()

	// [FORCED_TERMINATION] Close first so the transport stops reading even if no callback is set.
	conn.Close()
	if fn != nil {
		fn(conn)
	}
}
