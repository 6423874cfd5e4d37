package pubsub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	infrapubsub "github.com/webitel/im-chat-hub/infra/pubsub"
	"github.com/webitel/im-chat-hub/internal/domain/event"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

func newTestDispatcher(t *testing.T, size int) (*EventDispatcher, *infrapubsub.Provider) {
	t.Helper()
	p := infrapubsub.NewGoChannelProvider(watermill.NopLogger{})
	t.Cleanup(func() { _ = p.Close() })

	d := NewEventDispatcher(p.Publisher(), "node-a", size, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, p
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message on the bus")
		return nil
	}
}

func TestDispatcher_PublishActivity(t *testing.T) {
	d, p := newTestDispatcher(t, 8)
	ch, err := p.Subscriber().Subscribe(context.Background(), event.KindActivity.Topic())
	require.NoError(t, err)

	d.Start()
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	require.NoError(t, d.PublishActivity(context.Background(), model.Activity{ID: "a1", Kind: model.ActivityRoomCreated}))

	msg := receive(t, ch)
	assert.Equal(t, string(event.KindActivity), msg.Metadata.Get(MetaKind))
	assert.Equal(t, "node-a", msg.Metadata.Get(MetaOrigin))

	var env event.Envelope
	require.NoError(t, json.Unmarshal(msg.Payload, &env))
	assert.Equal(t, "node-a", env.Origin)

	var act model.Activity
	require.NoError(t, json.Unmarshal(env.Payload, &act))
	assert.Equal(t, "a1", act.ID)
}

func TestDispatcher_ForwardHasNoOrigin(t *testing.T) {
	d, p := newTestDispatcher(t, 8)
	ch, err := p.Subscriber().Subscribe(context.Background(), event.KindNewMessage.Topic())
	require.NoError(t, err)

	d.Start()
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	require.NoError(t, d.Forward(context.Background(), event.KindNewMessage, json.RawMessage(`{"to":"u2"}`)))

	msg := receive(t, ch)
	var env event.Envelope
	require.NoError(t, json.Unmarshal(msg.Payload, &env))
	assert.Empty(t, env.Origin)
	assert.JSONEq(t, `{"to":"u2"}`, string(env.Payload))
}

func TestDispatcher_OverflowDropsOldest(t *testing.T) {
	d, p := newTestDispatcher(t, 2)
	ch, err := p.Subscriber().Subscribe(context.Background(), event.KindActivity.Topic())
	require.NoError(t, err)

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, d.PublishActivity(context.Background(), model.Activity{ID: id}))
	}
	assert.Equal(t, 2, d.Pending())
	assert.EqualValues(t, 1, d.Dropped())

	d.Start()
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	var got []string
	for range 2 {
		var env event.Envelope
		require.NoError(t, json.Unmarshal(receive(t, ch).Payload, &env))
		var act model.Activity
		require.NoError(t, json.Unmarshal(env.Payload, &act))
		got = append(got, act.ID)
	}
	// gochannel does not order deliveries to one subscriber.
	assert.ElementsMatch(t, []string{"a2", "a3"}, got)
}

func TestDispatcher_NoSubscriberIsNoop(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)
	d.Start()

	require.NoError(t, d.PublishNewMessage(context.Background(), model.NewMessageNotice{To: "u1"}))
	require.NoError(t, d.Close(context.Background()))
	assert.Zero(t, d.Pending())
}

func TestDispatcher_CloseWithoutStart(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	d.Start()
}

func TestDispatcher_RejectsNilPayload(t *testing.T) {
	d, _ := newTestDispatcher(t, 4)
	require.Error(t, d.Publish(context.Background(), event.KindActivity, nil))
}
