package gossip

import "time"

// ObserverContact builds the ContactInfo this node advertises. Voting and
// Staked are hard-wired false: the node participates in topology maintenance
// but must never claim, or be granted, consensus influence. There is
// deliberately no constructor that can set either flag.
func ObserverContact(id PeerID, gossipAddr string, revision uint16, now time.Time) ContactInfo {
	return ContactInfo{
		ID:        id,
		Gossip:    gossipAddr,
		Wallclock: now.UnixMilli(),
		Revision:  revision,
		Voting:    false,
		Staked:    false,
	}
}
