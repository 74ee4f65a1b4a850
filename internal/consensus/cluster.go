package consensus

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quorumgate/pkg/domain"
)

// GenerateNodeKey creates a fresh Ed25519 keypair for a consensus member.
func GenerateNodeKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// ApplierFactory builds the per-node commit applier; every node owns its own
// copy of the record log and Merkle tree, so each needs its own applier.
type ApplierFactory func(m Member) Applier

// Cluster is an in-process consensus node set: one shared membership, one
// local bus, one engine per member. The single-binary deployment and the
// tests both build their node sets through it.
type Cluster struct {
	Set     *NodeSet
	Bus     *LocalBus
	engines map[domain.NodeID]*Engine
	keys    map[domain.NodeID]ed25519.PrivateKey
	order   []domain.NodeID
}

// NewCluster generates n members with fresh Ed25519 keys and wires an engine
// for each. Options apply to every engine.
func NewCluster(n int, timeout time.Duration, logger *slog.Logger, factory ApplierFactory, opts ...Option) (*Cluster, error) {
	if n < 1 {
		return nil, fmt.Errorf("cluster needs at least one node")
	}

	members := make([]Member, 0, n)
	keys := make(map[domain.NodeID]ed25519.PrivateKey, n)
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate node key: %w", err)
		}
		id := domain.NodeID(uuid.New())
		members = append(members, Member{
			ID:        id,
			PublicKey: pub,
			Endpoint:  fmt.Sprintf("local://node-%d", i),
			Active:    true,
		})
		keys[id] = priv
	}

	set, err := NewNodeSet(members)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		Set:     set,
		Bus:     NewLocalBus(),
		engines: make(map[domain.NodeID]*Engine, n),
		keys:    keys,
	}
	for _, m := range members {
		c.engines[m.ID] = NewEngine(m.ID, keys[m.ID], set, c.Bus, factory(m), timeout, logger, opts...)
		c.order = append(c.order, m.ID)
	}
	return c, nil
}

// Engine returns the engine at position i in registration order.
func (c *Cluster) Engine(i int) *Engine {
	return c.engines[c.order[i]]
}

// Size returns the number of nodes.
func (c *Cluster) Size() int {
	return len(c.order)
}

// privateKey returns the signing key of the node at position i.
func (c *Cluster) privateKey(i int) ed25519.PrivateKey {
	return c.keys[c.order[i]]
}

// Kill partitions the node at position i, simulating a crashed peer.
func (c *Cluster) Kill(i int) {
	c.Bus.Partition(c.order[i])
}

// Close shuts down message delivery.
func (c *Cluster) Close() {
	c.Bus.Close()
}
