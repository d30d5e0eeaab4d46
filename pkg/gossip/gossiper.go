package gossip

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/spechtlabs/strato/pkg/gossip")

const defaultMailboxDepth = 1024

// Listener observes membership and state changes. Callbacks are delivered on
// the gossip executor goroutine and must not block.
type Listener interface {
	// OnAlive is called when a node transitions to alive.
	OnAlive(node NodeID)

	// OnDead is called when the failure detector declares a node down.
	OnDead(node NodeID)

	// OnChange is called for every (node, key) pair an inbound merge
	// actually modified. Key is StateKeyHeartbeat for the advance of the
	// heartbeat itself.
	OnChange(node NodeID, key StateKey)
}

// Gossiper runs the anti-entropy engine for one node: it owns the endpoint
// state table, initiates rounds each period, and reconciles inbound packets.
//
// Concurrency model: a single executor goroutine (Start) owns the table.
// Transport receive goroutines and timers post events into a FIFO mailbox;
// the executor drains it, so every mutation is linearizable with respect to
// all others. Readers obtain copy-on-read snapshots through the mailbox as
// well.
type Gossiper struct {
	table    *EndpointStateTable
	detector *FailureDetector
	selector *peerSelector
	out      TransportOut

	localID         NodeID
	answerAddr      string
	interval        time.Duration
	roundTimeout    time.Duration
	phiThreshold    float64
	windowSize      int
	minSamples      int
	generation      int64
	generationFloor int64
	seeds           []NodeID
	now             func() time.Time
	rng             *rand.Rand

	mailbox   chan event
	rounds    map[NodeID]*round
	roundSeq  uint64
	listeners []Listener
}

type event any

type packetEvent struct {
	peer NodeID
	data []byte
}

type tickEvent struct{}

type roundTimeoutEvent struct {
	peer NodeID
	seq  uint64
}

type bumpLocalEvent struct {
	key   StateKey
	value []byte
	reply chan humane.Error
}

type snapshotEvent struct {
	reply chan TableSnapshot
}

type subscribeEvent struct {
	listener Listener
}

// New creates a gossiper for the given node identity sending through out.
// The generation defaults to the wall clock's unix seconds at construction;
// use WithGenerationFloor when a persisted generation must not be reused.
func New(localID NodeID, out TransportOut, opts ...Option) *Gossiper {
	g := &Gossiper{
		out:          out,
		localID:      localID,
		answerAddr:   string(localID),
		interval:     1 * time.Second,
		roundTimeout: 3 * time.Second,
		phiThreshold: DefaultPhiThreshold,
		windowSize:   DefaultDetectorWindowSize,
		minSamples:   DefaultDetectorMinSamples,
		now:          time.Now,
		mailbox:      make(chan event, defaultMailboxDepth),
		rounds:       make(map[NodeID]*round),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if g.generation == 0 {
		g.generation = g.now().Unix()
		if g.generation <= g.generationFloor {
			g.generation = g.generationFloor + 1
		}
	}

	g.table = NewEndpointStateTable(localID, g.generation, g.now)
	g.detector = NewFailureDetector(g.windowSize, g.minSamples, g.now)
	g.selector = newPeerSelector(g.rng, g.seeds)

	return g
}

// LocalID returns the local node identity.
func (g *Gossiper) LocalID() NodeID {
	return g.localID
}

// Start runs the gossip executor until ctx is cancelled. All table
// mutations happen on this goroutine.
func (g *Gossiper) Start(ctx context.Context) {
	otelzap.L().Info("Starting gossiper",
		zap.String("nodeID", g.localID.String()),
		zap.Int64("generation", g.generation),
		zap.Duration("interval", g.interval),
		zap.Int("seeds", len(g.seeds)),
	)

	go g.tickLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-g.mailbox:
			g.handleEvent(ctx, ev)
		}
	}
}

// tickLoop posts one tick per gossip period into the mailbox.
func (g *Gossiper) tickLoop(ctx context.Context) {
	// Desynchronize the first period so a fleet booted together does not
	// gossip in lockstep.
	startDelay := time.Duration(g.rng.Int64N(int64(g.interval)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(startDelay):
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.post(ctx, tickEvent{})
		}
	}
}

// HandlePacket implements PacketHandler: transports deliver raw payloads
// here from their receive goroutines. Never blocks; when the mailbox is
// saturated the packet is dropped and counted, the sender will gossip again
// next period.
func (g *Gossiper) HandlePacket(peer NodeID, packet []byte) {
	select {
	case g.mailbox <- packetEvent{peer: peer, data: packet}:
	default:
		packetsDropped.WithLabelValues(dropCauseMailbox).Inc()
	}
}

// BumpLocal advances the local heartbeat version and publishes key at the
// new version. Safe to call from any goroutine.
func (g *Gossiper) BumpLocal(ctx context.Context, key StateKey, value []byte) humane.Error {
	reply := make(chan humane.Error, 1)
	g.post(ctx, bumpLocalEvent{key: key, value: value, reply: reply})

	select {
	case <-ctx.Done():
		return humane.Wrap(ctx.Err(), "gossiper did not accept the state bump")
	case err := <-reply:
		return err
	}
}

// Snapshot returns a consistent copy of the endpoint state table.
func (g *Gossiper) Snapshot(ctx context.Context) TableSnapshot {
	reply := make(chan TableSnapshot, 1)
	g.post(ctx, snapshotEvent{reply: reply})

	select {
	case <-ctx.Done():
		return nil
	case snap := <-reply:
		return snap
	}
}

// LiveNodes returns the ids of all members currently considered alive,
// the local node included.
func (g *Gossiper) LiveNodes(ctx context.Context) []NodeID {
	return g.membershipView(ctx, true)
}

// DeadNodes returns the ids of all members currently considered down.
func (g *Gossiper) DeadNodes(ctx context.Context) []NodeID {
	return g.membershipView(ctx, false)
}

// Subscribe registers a listener for membership and state-change events.
func (g *Gossiper) Subscribe(ctx context.Context, listener Listener) {
	g.post(ctx, subscribeEvent{listener: listener})
}

func (g *Gossiper) membershipView(ctx context.Context, alive bool) []NodeID {
	snap := g.Snapshot(ctx)
	nodes := make([]NodeID, 0, len(snap))
	for id, state := range snap {
		if state.Alive() == alive {
			nodes = append(nodes, id)
		}
	}
	return nodes
}

func (g *Gossiper) post(ctx context.Context, ev event) {
	select {
	case <-ctx.Done():
	case g.mailbox <- ev:
	}
}

func (g *Gossiper) handleEvent(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case tickEvent:
		g.handleTick(ctx)

	case packetEvent:
		g.handlePacket(ctx, ev.peer, ev.data)

	case roundTimeoutEvent:
		g.handleRoundTimeout(ev.peer, ev.seq)

	case bumpLocalEvent:
		ev.reply <- g.table.BumpLocal(g.localID, ev.key, ev.value)

	case snapshotEvent:
		ev.reply <- g.table.Snapshot()

	case subscribeEvent:
		g.listeners = append(g.listeners, ev.listener)

	default:
		otelzap.L().Error("Unknown mailbox event, how is this possible?",
			zap.String("nodeID", g.localID.String()),
		)
	}
}

// handleTick runs one gossip period: bump the local heartbeat, start rounds
// with the selected peers, and sweep the failure detector.
func (g *Gossiper) handleTick(ctx context.Context) {
	g.table.BumpHeartbeat()

	live := make([]NodeID, 0)
	unreachable := make([]NodeID, 0)
	for id, state := range g.table.states {
		if id == g.localID {
			continue
		}
		if state.Alive() {
			live = append(live, id)
		} else {
			unreachable = append(unreachable, id)
		}
	}

	for _, peer := range g.selector.targets(g.localID, live, unreachable) {
		g.startRound(ctx, peer)
	}

	g.sweepFailureDetector()

	liveNodeCount.Set(float64(len(live) + 1))
	deadNodeCount.Set(float64(len(unreachable)))
}

// sweepFailureDetector demotes nodes whose accrued suspicion crossed the
// threshold. Resurrection happens in applyStates when a fresh heartbeat
// arrives.
func (g *Gossiper) sweepFailureDetector() {
	for id, state := range g.table.states {
		if id == g.localID || !state.Alive() {
			continue
		}

		phi := g.detector.Suspicion(id)
		if phi <= g.phiThreshold {
			continue
		}

		if g.table.setAlive(id, false) {
			otelzap.L().Info("Node marked down",
				zap.String("nodeID", g.localID.String()),
				zap.String("peerID", id.String()),
				zap.Float64("phi", phi),
				zap.Float64("threshold", g.phiThreshold),
			)
			for _, l := range g.listeners {
				l.OnDead(id)
			}
		}
	}
}

// applyStates merges a peer's state deltas into the table and feeds the
// failure detector from every heartbeat that actually advanced.
func (g *Gossiper) applyStates(states map[NodeID]*EndpointState) {
	for id, state := range states {
		changes := g.table.ApplyRemote(id, state)

		for _, change := range changes {
			if change.Key == StateKeyHeartbeat {
				g.detector.NotifyHeartbeat(id, g.now())

				if g.table.setAlive(id, true) {
					otelzap.L().Info("Node restored",
						zap.String("nodeID", g.localID.String()),
						zap.String("peerID", id.String()),
					)
					for _, l := range g.listeners {
						l.OnAlive(id)
					}
				}
			}

			for _, l := range g.listeners {
				l.OnChange(change.Node, change.Key)
			}
		}
	}
}

func (g *Gossiper) send(ctx context.Context, peer NodeID, p *Packet) {
	p.Envelope.Source = g.localID
	p.Envelope.AnswerAddr = g.answerAddr
	p.Envelope.Traceparent = traceparentFromContext(ctx)

	data, herr := EncodePacket(p)
	if herr != nil {
		otelzap.L().WithError(herr).Error("Failed to encode gossip packet",
			zap.String("nodeID", g.localID.String()),
			zap.String("peerID", peer.String()),
			zap.String("packetType", p.Type.String()),
		)
		return
	}

	if err := g.out.Send(peer, data); err != nil {
		sendFailures.Inc()
		otelzap.L().WithError(err).Debug("Failed to send gossip packet",
			zap.String("nodeID", g.localID.String()),
			zap.String("peerID", peer.String()),
			zap.String("packetType", p.Type.String()),
		)
	}
}
