package model

// EventPriority decides what a saturated connection sheds first.
type EventPriority int32

const (
	PriorityLow    EventPriority = 10 // [BEST_EFFORT] activity notifications, typing
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30 // [MUST_ARRIVE] replies, chat, DMs
)

// Frame is a serialized outbound packet waiting in a connection's send queue.
type Frame struct {
	Payload  []byte
	Priority EventPriority
}
