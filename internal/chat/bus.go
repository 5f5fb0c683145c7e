package chat

import (
	"log/slog"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// BusFabric is the shared fan-out realization. Every published message
// reaches every subscription, the origin's included; origin suppression
// and the self welcome/farewell happen in each session writer. A slow
// subscriber loses messages and carries a lag count, but is never evicted
// for falling behind and never stalls the rest.
type BusFabric struct {
	subs   cmap.ConcurrentMap[string, *member]
	cfg    Config
	logger *slog.Logger
}

func NewBusFabric(cfg Config, logger *slog.Logger) *BusFabric {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusFabric{
		subs:   cmap.New[*member](),
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

func (f *BusFabric) Admit(id, name string) (*Handle, error) {
	ep := newEndpoint(f.cfg.SinkCapacity)
	join := NewJoin(id, name)

	// Seed the fresh subscription before it joins the bus so the welcome
	// precedes any in-flight traffic.
	ep.TrySend(join, 0)

	if !f.subs.SetIfAbsent(id, &member{name: name, ep: ep}) {
		ep.Close()
		return nil, ErrPeerExists
	}

	f.deliver(id, join)
	connectedPeers.Set(float64(f.subs.Count()))
	messagesTotal.WithLabelValues(KindJoin.String()).Inc()
	f.logger.Info("peer joined", "peer", id, "name", name)
	return &Handle{ep: ep}, nil
}

func (f *BusFabric) Evict(id string) {
	m, ok := f.subs.Pop(id)
	if !ok {
		return
	}
	connectedPeers.Set(float64(f.subs.Count()))

	leave := NewLeave(id, m.name)
	m.ep.TrySend(leave, 0)
	m.ep.Close()

	f.deliver(id, leave)
	messagesTotal.WithLabelValues(KindLeave.String()).Inc()
	f.logger.Info("peer left", "peer", id, "name", m.name)
}

func (f *BusFabric) Publish(origin string, msg *Message) {
	if msg.Kind == KindChat {
		messagesTotal.WithLabelValues(KindChat.String()).Inc()
	}
	// The origin gets its own copy too; its writer filters it out.
	f.deliver("", msg)
}

// deliver fans msg out to every subscription except skip. Overflow drops
// that subscriber's copy and bumps its lag count.
func (f *BusFabric) deliver(skip string, msg *Message) {
	for item := range f.subs.IterBuffered() {
		if item.Key == skip {
			continue
		}
		if !item.Val.ep.TrySend(msg, 0) {
			item.Val.ep.markDropped()
			droppedDeliveries.Inc()
		}
	}
}

func (f *BusFabric) Peers() int {
	return f.subs.Count()
}

func (f *BusFabric) Close() {
	for _, id := range f.subs.Keys() {
		f.Evict(id)
	}
}
