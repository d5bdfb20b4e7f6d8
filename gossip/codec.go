package gossip

import (
	"encoding/json"
	"fmt"
)

// maxDatagramBytes bounds what we will encode into or accept from a single
// datagram. Gossip payloads are small; anything larger is hostile or broken.
const maxDatagramBytes = 64 * 1024

// EncodeMessage serializes a GossipMessage into its wire form: a one-byte
// message kind followed by a JSON body.
func EncodeMessage(msg *GossipMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidEnvelope)
	}
	switch msg.Kind {
	case MsgTypePush, MsgTypePullRequest, MsgTypePullResponse, MsgTypePrune:
	default:
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrInvalidEnvelope, msg.Kind)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode gossip message: %w", err)
	}
	if len(body)+1 > maxDatagramBytes {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrInvalidEnvelope, maxDatagramBytes)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, msg.Kind)
	out = append(out, body...)
	return out, nil
}

// DecodeMessage parses a received datagram. The sender identity must be
// present; messages without one cannot update the peer table and are rejected.
func DecodeMessage(raw []byte) (*GossipMessage, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: short datagram (%d bytes)", ErrInvalidEnvelope, len(raw))
	}
	if len(raw) > maxDatagramBytes {
		return nil, fmt.Errorf("%w: datagram exceeds %d bytes", ErrInvalidEnvelope, maxDatagramBytes)
	}
	kind := raw[0]
	switch kind {
	case MsgTypePush, MsgTypePullRequest, MsgTypePullResponse, MsgTypePrune:
	default:
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrInvalidEnvelope, kind)
	}
	msg := &GossipMessage{}
	if err := json.Unmarshal(raw[1:], msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	msg.Kind = kind
	if msg.From == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrInvalidEnvelope)
	}
	return msg, nil
}
