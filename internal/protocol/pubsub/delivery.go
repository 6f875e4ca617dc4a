package pubsub

import (
	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/pkg/types"
)

type delivery struct {
	topic string
	from  types.PeerID
	data  []byte
}

// deliver 放入投递队列，队列满时丢弃新消息；调用方持有 mu
func (ps *PubSub) deliver(topic string, from types.PeerID, data []byte) {
	select {
	case ps.deliveries <- delivery{topic: topic, from: from, data: data}:
	default:
		ps.metrics.Message(metrics.EventDropped)
		log.Warn("投递队列已满，丢弃消息", "topic", topic, "from", from.ShortString())
	}
}

// deliverLoop 串行调用订阅回调
func (ps *PubSub) deliverLoop() {
	defer ps.wg.Done()
	for {
		select {
		case <-ps.ctx.Done():
			return
		case d := <-ps.deliveries:
			ps.mu.Lock()
			h := ps.topics[d.topic]
			ps.mu.Unlock()
			if h == nil {
				// 投递前已取消订阅
				continue
			}
			ps.metrics.Message(metrics.EventDelivered)
			h(d.from, d.data)
		}
	}
}
