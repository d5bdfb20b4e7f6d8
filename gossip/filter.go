package gossip

import "time"

// DiscardReason labels why an inbound payload was withheld from the
// forwarding path.
type DiscardReason string

const (
	DiscardVote          DiscardReason = "vote"
	DiscardLeaderSched   DiscardReason = "leader_schedule"
	DiscardBlockCtl      DiscardReason = "block_control"
	DiscardUnknown       DiscardReason = "unknown_kind"
	DiscardEmptyPayload  DiscardReason = "empty_payload"
	DiscardRevision      DiscardReason = "revision_mismatch"
	DiscardRateLimited   DiscardReason = "rate_limited"
	DiscardDecodeFailure DiscardReason = "decode_failure"
)

// Classification is the outcome of filtering one gossip message: the records
// to forward plus per-reason counts for everything withheld.
type Classification struct {
	Records  []CapturedRecord
	Discards map[DiscardReason]int
}

func (c *Classification) discard(reason DiscardReason) {
	if c.Discards == nil {
		c.Discards = make(map[DiscardReason]int)
	}
	c.Discards[reason]++
}

// Classify extracts forwardable records from a decoded gossip message. It is
// stateless and fail-closed: only transaction and block-metadata payloads
// produce records; votes, leader schedules, block-production control and any
// kind this build does not recognize are discarded. ContactInfo values are
// membership data and pass through silently — the caller feeds them to the
// peer table, never to the forwarding channel.
func Classify(msg *GossipMessage, now time.Time) Classification {
	var out Classification
	if msg == nil {
		return out
	}
	switch msg.Kind {
	case MsgTypePush, MsgTypePullResponse:
	default:
		// Pull requests and prunes carry no capturable payloads.
		return out
	}
	for _, value := range msg.Values {
		switch value.Kind {
		case ValueTransaction, ValueBlockMeta:
			if len(value.Data) == 0 {
				out.discard(DiscardEmptyPayload)
				continue
			}
			source := value.Origin
			if source == "" {
				source = msg.From
			}
			payload := make([]byte, len(value.Data))
			copy(payload, value.Data)
			out.Records = append(out.Records, CapturedRecord{
				Source:     source,
				Kind:       value.Kind,
				CapturedAt: now,
				Payload:    payload,
			})
		case ValueContactInfo:
			// Membership data, handled by the client.
		case ValueVote:
			out.discard(DiscardVote)
		case ValueLeaderSched:
			out.discard(DiscardLeaderSched)
		case ValueBlockCtl:
			out.discard(DiscardBlockCtl)
		default:
			out.discard(DiscardUnknown)
		}
	}
	return out
}
