package chat

import (
	"errors"
	"log/slog"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrPeerExists reports an Admit under a peer id that is still connected.
// Ids are remote addresses, so this only fires on id reuse before the
// previous peer finished evicting.
var ErrPeerExists = errors.New("peer id already admitted")

// Fabric delivers published messages to admitted peers with bounded
// buffering per peer. Both realizations present the same surface; they
// differ in where origin filtering happens and in the slow-peer policy.
type Fabric interface {
	// Admit publishes the peer's Join, installs its delivery endpoint
	// and returns the handle its writer drains. The first message on the
	// handle is always the peer's own Join.
	Admit(id, name string) (*Handle, error)

	// Evict removes the peer, closes its endpoint and publishes its
	// Leave. Evicting an absent id is a no-op.
	Evict(id string)

	// Publish delivers msg on behalf of origin. The originating peer
	// never sees its own chat delivered back.
	Publish(origin string, msg *Message)

	// Peers reports the number of currently admitted peers.
	Peers() int

	// Close evicts every remaining peer.
	Close()
}

type member struct {
	name string
	ep   *Endpoint
}

// MailboxFabric is the per-peer-mailbox realization. Membership lives in
// a sharded concurrent map so admissions, evictions and broadcast
// snapshots never contend on one lock.
type MailboxFabric struct {
	peers  cmap.ConcurrentMap[string, *member]
	cfg    Config
	logger *slog.Logger
}

func NewMailboxFabric(cfg Config, logger *slog.Logger) *MailboxFabric {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailboxFabric{
		peers:  cmap.New[*member](),
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

func (f *MailboxFabric) Admit(id, name string) (*Handle, error) {
	// Refuse a live duplicate before anything is published, so a failed
	// admission never broadcasts a join without a matching leave. The
	// SetIfAbsent below still decides true races.
	if f.peers.Has(id) {
		return nil, ErrPeerExists
	}

	ep := newEndpoint(f.cfg.SinkCapacity)
	join := NewJoin(id, name)

	// Current peers hear the join through the snapshot; the newcomer
	// hears it through its own mailbox, seeded before the mailbox is
	// visible to publishers. Its welcome therefore always arrives first.
	f.Publish(id, join)
	ep.TrySend(join, 0)

	if !f.peers.SetIfAbsent(id, &member{name: name, ep: ep}) {
		ep.Close()
		return nil, ErrPeerExists
	}

	connectedPeers.Set(float64(f.peers.Count()))
	messagesTotal.WithLabelValues(KindJoin.String()).Inc()
	f.logger.Info("peer joined", "peer", id, "name", name)
	return &Handle{ep: ep}, nil
}

func (f *MailboxFabric) Evict(id string) {
	f.evict(id)
}

// evict reports whether this call removed the peer. The Leave goes out
// only after the entry is gone, so no delivery is directed at the peer's
// sink past that point.
func (f *MailboxFabric) evict(id string) bool {
	m, ok := f.peers.Pop(id)
	if !ok {
		return false
	}
	connectedPeers.Set(float64(f.peers.Count()))

	leave := NewLeave(id, m.name)
	// Best effort: a full mailbox just means no farewell.
	m.ep.TrySend(leave, 0)
	m.ep.Close()

	f.Publish(id, leave)
	messagesTotal.WithLabelValues(KindLeave.String()).Inc()
	f.logger.Info("peer left", "peer", id, "name", m.name)
	return true
}

func (f *MailboxFabric) Publish(origin string, msg *Message) {
	if msg.Kind == KindChat {
		messagesTotal.WithLabelValues(KindChat.String()).Inc()
	}
	for item := range f.peers.IterBuffered() {
		if item.Key == origin {
			continue
		}
		if item.Val.ep.TrySend(msg, f.cfg.RetryBudget) {
			continue
		}
		droppedDeliveries.Inc()
		// Full past the retry budget, or already closing: the peer is
		// slow or gone either way. Losing the race to a concurrent
		// eviction makes evict a no-op.
		if f.evict(item.Key) {
			slowPeerEvictions.Inc()
			f.logger.Warn("slow peer evicted",
				"peer", item.Key, "name", item.Val.name, "kind", msg.Kind.String())
		}
	}
}

func (f *MailboxFabric) Peers() int {
	return f.peers.Count()
}

func (f *MailboxFabric) Close() {
	for _, id := range f.peers.Keys() {
		f.Evict(id)
	}
}
