package gossip

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	contact := ObserverContact("0xabc", "127.0.0.1:8001", 27799, time.Unix(100, 0))
	msg := &GossipMessage{
		Kind:    MsgTypePush,
		From:    "0xabc",
		Contact: &contact,
		Values: []CrdsValue{
			{Kind: ValueTransaction, Origin: "0xdef", Data: []byte("tx-bytes")},
		},
	}
	raw, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if raw[0] != MsgTypePush {
		t.Fatalf("expected kind byte 0x%02x got 0x%02x", MsgTypePush, raw[0])
	}
	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != MsgTypePush || decoded.From != "0xabc" {
		t.Fatalf("unexpected envelope: kind=0x%02x from=%s", decoded.Kind, decoded.From)
	}
	if len(decoded.Values) != 1 || string(decoded.Values[0].Data) != "tx-bytes" {
		t.Fatalf("payload did not survive round trip: %+v", decoded.Values)
	}
	if decoded.Contact == nil || decoded.Contact.Revision != 27799 {
		t.Fatalf("contact did not survive round trip: %+v", decoded.Contact)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"short":          {MsgTypePush},
		"unknown kind":   {0x7f, '{', '}'},
		"not json":       {MsgTypePush, 'x', 'y', 'z'},
		"missing sender": append([]byte{MsgTypePush}, []byte(`{"values":[]}`)...),
	}
	for name, raw := range cases {
		if _, err := DecodeMessage(raw); !errors.Is(err, ErrInvalidEnvelope) {
			t.Fatalf("%s: expected ErrInvalidEnvelope got %v", name, err)
		}
	}
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	if _, err := EncodeMessage(&GossipMessage{Kind: 0x42, From: "0xabc"}); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope got %v", err)
	}
}

func TestObserverContactNeverAdvertisesCapability(t *testing.T) {
	contact := ObserverContact("0xabc", "127.0.0.1:8001", 1, time.Now())
	if contact.Voting || contact.Staked {
		t.Fatalf("observer contact must not claim consensus capability: %+v", contact)
	}
}
