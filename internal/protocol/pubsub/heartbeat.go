package pubsub

import "github.com/dep2p/go-meshchat/pkg/types"

func (ps *PubSub) heartbeatLoop() {
	defer ps.wg.Done()
	t := ps.clock.Ticker(ps.params.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ps.ctx.Done():
			return
		case <-t.C:
			ps.heartbeat()
		}
	}
}

// heartbeat 维护 mesh 度数并清理过期 fanout
func (ps *PubSub) heartbeat() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}

	grafts := make(map[types.PeerID][]*ControlGraft)
	prunes := make(map[types.PeerID][]*ControlPrune)

	for topic, mesh := range ps.mesh {
		for id := range mesh {
			if p := ps.peers[id]; p == nil || !p.interested(topic) {
				delete(mesh, id)
			}
		}

		if len(mesh) < ps.params.Dlo {
			for _, id := range ps.shuffled(ps.interestedPeers(topic, mesh)) {
				if len(mesh) >= ps.params.D {
					break
				}
				mesh[id] = struct{}{}
				grafts[id] = append(grafts[id], &ControlGraft{Topic: topic})
			}
		}

		if len(mesh) > ps.params.Dhi {
			ids := make([]types.PeerID, 0, len(mesh))
			for id := range mesh {
				ids = append(ids, id)
			}
			for _, id := range ps.shuffled(ids)[ps.params.D:] {
				delete(mesh, id)
				prunes[id] = append(prunes[id], &ControlPrune{Topic: topic})
			}
		}

		ps.metrics.MeshSize(topic, len(mesh))
	}

	now := ps.clock.Now()
	for topic, last := range ps.lastPub {
		if now.Sub(last) >= ps.params.FanoutTTL {
			delete(ps.fanout, topic)
			delete(ps.lastPub, topic)
			log.Debug("fanout 过期", "topic", topic)
			continue
		}
		for id := range ps.fanout[topic] {
			if _, ok := ps.peers[id]; !ok {
				delete(ps.fanout[topic], id)
			}
		}
	}

	for id, p := range ps.peers {
		g, pr := grafts[id], prunes[id]
		if len(g) == 0 && len(pr) == 0 {
			continue
		}
		ps.send(p, &RPC{Control: &ControlMessage{Graft: g, Prune: pr}})
	}
}
