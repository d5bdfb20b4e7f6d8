package gossip

import "time"

// PeerID is the stable identity of a network participant, derived from its
// public key. Opaque to everything except the identity layer.
type PeerID string

// Constants for our gossip message kinds.
const (
	MsgTypePush         byte = 0x01
	MsgTypePullRequest  byte = 0x02
	MsgTypePullResponse byte = 0x03
	MsgTypePrune        byte = 0x04
)

// ValueKind tags the payload carried inside a CrdsValue.
type ValueKind byte

const (
	ValueContactInfo ValueKind = 0x01
	ValueVote        ValueKind = 0x02
	ValueLeaderSched ValueKind = 0x03
	ValueBlockCtl    ValueKind = 0x04
	ValueTransaction ValueKind = 0x05
	ValueBlockMeta   ValueKind = 0x06
)

// ContactInfo is a peer's self-advertised endpoint and capability metadata.
type ContactInfo struct {
	ID        PeerID `json:"id"`
	Gossip    string `json:"gossip"`
	Wallclock int64  `json:"wallclock"`
	Revision  uint16 `json:"revision"`
	Voting    bool   `json:"voting"`
	Staked    bool   `json:"staked"`
}

// CrdsValue is a single gossip-propagated payload. Contact is set only for
// ValueContactInfo; Data carries the opaque payload bytes for every other kind.
type CrdsValue struct {
	Kind      ValueKind    `json:"kind"`
	Origin    PeerID       `json:"origin"`
	Wallclock int64        `json:"wallclock"`
	Contact   *ContactInfo `json:"contact,omitempty"`
	Data      []byte       `json:"data,omitempty"`
}

// GossipMessage is the decoded form of one inbound or outbound datagram.
// From identifies the sender; Contact is the sender's own advertisement and
// is present on push and pull-request messages. Values carries the gossiped
// payload set; Prunes lists origins the sender no longer wants relayed.
type GossipMessage struct {
	Kind    byte         `json:"-"`
	From    PeerID       `json:"from"`
	Contact *ContactInfo `json:"contact,omitempty"`
	Values  []CrdsValue  `json:"values,omitempty"`
	Prunes  []PeerID     `json:"prunes,omitempty"`
}

// CapturedRecord is a transaction or block-metadata payload lifted out of the
// gossip stream, stamped with its source peer and capture time.
type CapturedRecord struct {
	Source     PeerID    `json:"source"`
	Kind       ValueKind `json:"kind"`
	CapturedAt time.Time `json:"capturedAt"`
	Payload    []byte    `json:"payload"`
}

// PeerRecord tracks the last-known state of a discovered peer. Owned
// exclusively by the peer table.
type PeerRecord struct {
	ID       PeerID
	Addr     string
	LastSeen time.Time
	Voting   bool
	Staked   bool
}
