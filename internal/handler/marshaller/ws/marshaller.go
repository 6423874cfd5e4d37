// Package wsmarshaller is the JSON wire format of the websocket transport.
package wsmarshaller

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service/dto"
)

// Marshaller implements service.Codec for text websocket frames.
type Marshaller struct{}

func New() *Marshaller { return &Marshaller{} }

// Decode parses a tagged {type, ...} envelope.
// Anything unparseable is a protocol error, reported to the client.
func (Marshaller) Decode(raw []byte) (dto.Inbound, error) {
	var in dto.Inbound

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return in, model.NewProtocolError("invalid message format")
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, &model.Error{Kind: model.KindProtocol, Message: "invalid message format", Err: err}
	}
	if in.Type == "" {
		return in, model.NewProtocolError("message type is required")
	}
	return in, nil
}

// Encode serializes an outbound payload once; the frame is shared by every recipient.
func (Marshaller) Encode(v any, priority model.EventPriority) (model.Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return model.Frame{}, fmt.Errorf("wsmarshaller: encode %T: %w", v, err)
	}
	return model.Frame{Payload: data, Priority: priority}, nil
}
