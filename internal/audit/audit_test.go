package audit

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/internal/consensus"
	"quorumgate/pkg/domain"
)

func TestPublisherDeliversToSink(t *testing.T) {
	pub := NewPublisher(16, nil)
	sink := NewMemorySink()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx, sink)
	}()

	pub.Emit(ctx, Event{Kind: KindCommit, RecordID: uuid.NewString()})
	pub.Emit(ctx, Event{Kind: KindRejection, Reason: "token replay"})

	assert.Eventually(t, func() bool {
		return len(sink.Events()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	events := sink.Events()
	assert.False(t, events[0].Timestamp.IsZero(), "publisher stamps events")
	assert.Len(t, sink.ByKind(KindRejection), 1)
}

func TestPublisherDropsWhenBufferFull(t *testing.T) {
	pub := NewPublisher(1, nil)

	// No worker draining; the second emit must drop, not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Emit(context.Background(), Event{Kind: KindCommit})
		pub.Emit(context.Background(), Event{Kind: KindCommit})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	assert.Len(t, pub.inbox, 1)
}

func TestReporterEmitsEquivocationEvent(t *testing.T) {
	pub := NewPublisher(8, nil)
	sink := NewMemorySink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pub.Run(ctx, sink) }()

	nodeID := domain.NodeID(uuid.New())
	proposalID := domain.ProposalID(uuid.New())
	_, priv, err := consensus.GenerateNodeKey()
	require.NoError(t, err)
	first := consensus.SignVote(nodeID, proposalID, [32]byte{0xaa}, consensus.PhasePrepare, priv)
	second := consensus.SignVote(nodeID, proposalID, [32]byte{0xbb}, consensus.PhaseCommit, priv)
	NewReporter(pub).ReportEquivocation(ctx, nodeID, proposalID, first, second)

	require.Eventually(t, func() bool {
		return len(sink.ByKind(KindEquivocation)) == 1
	}, time.Second, 10*time.Millisecond)

	event := sink.ByKind(KindEquivocation)[0]
	assert.Equal(t, nodeID.String(), event.NodeID)
	assert.Equal(t, proposalID.String(), event.ProposalID)
	assert.NotEmpty(t, event.Reason)

	require.Len(t, event.Evidence, 2, "both conflicting votes recorded")
	assert.Equal(t, "prepare", event.Evidence[0].Phase)
	assert.Equal(t, "commit", event.Evidence[1].Phase)
	assert.NotEqual(t, event.Evidence[0].ProposalHash, event.Evidence[1].ProposalHash)
	assert.Equal(t, hex.EncodeToString(first.Signature), event.Evidence[0].Signature)
	assert.Equal(t, hex.EncodeToString(second.Signature), event.Evidence[1].Signature)
}
