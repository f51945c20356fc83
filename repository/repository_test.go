package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/drpcorg/lwdelta/connector"
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/journal"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/serialization"
	"github.com/drpcorg/lwdelta/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	s    *testutils.Shapes
	hub  *connector.Memory
	repo *Repository
}

// newHarness serves partitions g and h over an in-memory connector.
func newHarness(t *testing.T, opts Options) *harness {
	s := testutils.NewShapes()
	forest := model.NewForest()
	require.NoError(t, forest.AddPartition(s.NewGeometry("g")))
	require.NoError(t, forest.AddPartition(s.NewGeometry("h")))
	hub := connector.NewMemory(connector.MemoryOptions{})
	repo, err := New(forest, s.KeyedMap(), hub, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = hub.Close()
		_ = repo.Close()
	})
	return &harness{s: s, hub: hub, repo: repo}
}

type peer struct {
	t  *testing.T
	c  *connector.MemoryClient
	in chan delta.Content
}

func (h *harness) dial(t *testing.T, id string) *peer {
	c, err := h.hub.Dial(id)
	require.NoError(t, err)
	p := &peer{t: t, c: c, in: make(chan delta.Content, 256)}
	c.OnReceive(func(_ context.Context, m delta.Content) { p.in <- m })
	return p
}

func (p *peer) send(c delta.Content) {
	require.NoError(p.t, p.c.Send(context.Background(), c))
}

func (p *peer) next() delta.Content {
	select {
	case m := <-p.in:
		return m
	case <-time.After(5 * time.Second):
		p.t.Fatalf("%s got nothing", p.c.Id())
		return nil
	}
}

func (p *peer) quiet() {
	select {
	case m := <-p.in:
		p.t.Fatalf("%s got an unexpected %s", p.c.Id(), m.Kind())
	case <-time.After(100 * time.Millisecond):
	}
}

func (p *peer) signOn() string {
	p.send(&delta.SignOnRequest{QueryBase: delta.QueryBase{QueryId: "on"},
		DeltaProtocolVersion: delta.ProtocolVersion, ClientId: p.c.Id()})
	resp, ok := p.next().(*delta.SignOnResponse)
	require.True(p.t, ok)
	require.NotEmpty(p.t, resp.ParticipationId)
	return resp.ParticipationId
}

func (p *peer) subscribe(partition delta.NodeId) serialization.Chunk {
	p.send(&delta.SubscribeToPartitionContentsRequest{QueryBase: delta.QueryBase{QueryId: "sub"}, Partition: partition})
	resp, ok := p.next().(*delta.SubscribeToPartitionContentsResponse)
	require.True(p.t, ok)
	return resp.Contents
}

func (p *peer) errorEvent() *delta.ErrorEvent {
	e, ok := p.next().(*delta.ErrorEvent)
	require.True(p.t, ok)
	return e
}

func (h *harness) leafChunk(t *testing.T, id string) serialization.Chunk {
	chunk, err := serialization.Serialize(h.s.NewLeaf(id, id), model.BuiltinConverter{})
	require.NoError(t, err)
	return chunk
}

func (h *harness) addLeaf(t *testing.T, partition model.NodeId, id string) {
	require.NoError(t, h.repo.Edit(partition, func(root *model.Node) error {
		return root.InsertChild(h.s.Parts, len(root.Children(h.s.Parts)), h.s.NewLeaf(id, id))
	}))
}

func TestRepository_AddChildReachesSubscribers(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.dial(t, "A"), h.dial(t, "B")
	pa := a.signOn()
	b.signOn()
	a.subscribe("g")
	b.subscribe("g")

	a.send(&delta.AddChild{CommandBase: delta.CommandBase{CommandId: "c1"}, Parent: "g",
		NewChild: h.leafChunk(t, "n1"), Containment: h.s.Parts.Meta, Index: 0})

	added, ok := b.next().(*delta.ChildAdded)
	require.True(t, ok)
	assert.Equal(t, 0, added.Index)
	assert.Equal(t, uint64(0), added.Sequence())
	assert.Equal(t, delta.NodeId("g"), added.Parent)
	assert.Equal(t, []delta.CommandSource{{ParticipationId: pa, CommandId: "c1"}}, added.Origins())

	ack, ok := a.next().(*delta.ChildAdded)
	require.True(t, ok)
	assert.Equal(t, []delta.CommandSource{{ParticipationId: pa, CommandId: "c1"}}, ack.Origins())
	a.quiet()
	b.quiet()

	n1, ok := h.repo.Nodes().TryGet("n1")
	require.True(t, ok)
	assert.Equal(t, delta.NodeId("g"), n1.Parent().Id())
}

func TestRepository_SubscriptionFanOut(t *testing.T) {
	h := newHarness(t, Options{Participation: "repo"})
	a, b := h.dial(t, "A"), h.dial(t, "B")
	a.signOn()
	b.signOn()
	a.subscribe("g")
	b.subscribe("h")

	h.addLeaf(t, "g", "x")
	added, ok := a.next().(*delta.ChildAdded)
	require.True(t, ok)
	assert.Equal(t, "repo", added.Origins()[0].ParticipationId)
	b.quiet()

	a.send(&delta.UnsubscribeFromPartitionContentsRequest{QueryBase: delta.QueryBase{QueryId: "u"}, Partition: "g"})
	assert.IsType(t, &delta.UnsubscribeFromPartitionContentsResponse{}, a.next())
	h.addLeaf(t, "g", "y")
	a.quiet()
}

func TestRepository_SequenceNumbers(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t, "A")
	a.signOn()
	a.subscribe("g")
	a.subscribe("h")

	const each = 20
	var wg sync.WaitGroup
	for _, partition := range []model.NodeId{"g", "h"} {
		partition := partition
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = h.repo.Edit(partition, func(root *model.Node) error {
					return root.InsertChild(h.s.Parts, 0, h.s.NewLeaf(fmt.Sprintf("%s%d", partition, i), "x"))
				})
			}
		}()
	}
	wg.Wait()
	for want := uint64(0); want < 2*each; want++ {
		e, ok := a.next().(delta.Event)
		require.True(t, ok)
		assert.Equal(t, want, e.Sequence())
	}
	a.quiet()
}

func TestRepository_ErrorsGoToOriginator(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.dial(t, "A"), h.dial(t, "B")
	pa := a.signOn()
	b.signOn()
	a.subscribe("g")
	b.subscribe("g")

	a.send(&delta.AddProperty{CommandBase: delta.CommandBase{CommandId: "bad"}, Node: "missing",
		Property: h.s.Size.Meta, NewValue: nil})
	e := a.errorEvent()
	assert.Equal(t, delta.ResolutionError, e.ErrorCode)
	assert.Equal(t, []delta.CommandSource{{ParticipationId: pa, CommandId: "bad"}}, e.Origins())
	b.quiet()

	// the repository keeps serving
	a.send(&delta.AddChild{CommandBase: delta.CommandBase{CommandId: "good"}, Parent: "g",
		NewChild: h.leafChunk(t, "n1"), Containment: h.s.Parts.Meta, Index: 0})
	assert.IsType(t, &delta.ChildAdded{}, a.next())
	assert.IsType(t, &delta.ChildAdded{}, b.next())
}

func TestRepository_NotSignedOn(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t, "A")
	a.send(&delta.ListPartitionsRequest{QueryBase: delta.QueryBase{QueryId: "q"}})
	e := a.errorEvent()
	assert.Equal(t, delta.ProtocolError, e.ErrorCode)
	assert.Equal(t, "q", e.QueryId)

	a.send(&delta.SignOnRequest{QueryBase: delta.QueryBase{QueryId: "on"}, DeltaProtocolVersion: "1999.1"})
	assert.Equal(t, delta.ProtocolError, a.errorEvent().ErrorCode)

	a.signOn()
	a.send(&delta.SignOnRequest{QueryBase: delta.QueryBase{QueryId: "again"}, DeltaProtocolVersion: delta.ProtocolVersion})
	assert.Equal(t, delta.ProtocolError, a.errorEvent().ErrorCode)
}

func TestRepository_PartitionLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.dial(t, "A"), h.dial(t, "B")
	a.signOn()
	b.signOn()
	a.send(&delta.SubscribeToChangingPartitionsRequest{QueryBase: delta.QueryBase{QueryId: "p"},
		Creation: true, Deletion: true, Partitions: true})
	assert.IsType(t, &delta.SubscribeToChangingPartitionsResponse{}, a.next())

	chunk, err := serialization.Serialize(h.s.NewGeometry("p2"), model.BuiltinConverter{})
	require.NoError(t, err)
	a.send(&delta.AddPartition{CommandBase: delta.CommandBase{CommandId: "mk"}, NewPartition: chunk})
	created, ok := a.next().(*delta.PartitionAdded)
	require.True(t, ok)
	assert.Equal(t, "p2", created.NewPartition.Nodes[0].Id)

	a.send(&delta.AddChild{CommandBase: delta.CommandBase{CommandId: "fill"}, Parent: "p2",
		NewChild: h.leafChunk(t, "k"), Containment: h.s.Parts.Meta, Index: 0})
	assert.IsType(t, &delta.ChildAdded{}, a.next())

	a.send(&delta.DeletePartition{CommandBase: delta.CommandBase{CommandId: "rm"}, DeletedPartition: "p2"})
	deleted, ok := a.next().(*delta.PartitionDeleted)
	require.True(t, ok)
	assert.Equal(t, []delta.NodeId{"k"}, deleted.DeletedDescendants)
	b.quiet()

	a.send(&delta.AddChild{CommandBase: delta.CommandBase{CommandId: "late"}, Parent: "p2",
		NewChild: h.leafChunk(t, "k2"), Containment: h.s.Parts.Meta, Index: 0})
	assert.Equal(t, delta.ResolutionError, a.errorEvent().ErrorCode)
	_, ok = h.repo.Nodes().TryGet("k")
	assert.False(t, ok)
}

func TestRepository_Queries(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t, "A")
	a.signOn()

	a.send(&delta.ListPartitionsRequest{QueryBase: delta.QueryBase{QueryId: "l"}})
	list, ok := a.next().(*delta.ListPartitionsResponse)
	require.True(t, ok)
	assert.Equal(t, "l", list.QueryId)
	assert.Equal(t, []delta.PartitionSummary{
		{Id: "g", Classifier: h.s.Geometry.Meta},
		{Id: "h", Classifier: h.s.Geometry.Meta},
	}, list.Partitions)

	a.send(&delta.GetAvailableIdsRequest{QueryBase: delta.QueryBase{QueryId: "ids"}, Count: 3})
	ids, ok := a.next().(*delta.GetAvailableIdsResponse)
	require.True(t, ok)
	require.Len(t, ids.Ids, 3)
	assert.NotEqual(t, ids.Ids[0], ids.Ids[1])

	a.send(&delta.GetAvailableIdsRequest{QueryBase: delta.QueryBase{QueryId: "none"}, Count: 0})
	e := a.errorEvent()
	assert.Equal(t, delta.ValueError, e.ErrorCode)
	assert.Equal(t, "none", e.QueryId)

	h.addLeaf(t, "g", "x")
	contents := a.subscribe("g")
	assert.Equal(t, []model.NodeId{"g", "x"}, contents.Ids())

	a.send(&delta.SubscribeToPartitionContentsRequest{QueryBase: delta.QueryBase{QueryId: "leaf"}, Partition: "x"})
	assert.Equal(t, delta.ResolutionError, a.errorEvent().ErrorCode)

	a.send(&delta.UnknownMessage{MessageKind: "FutureRequest", Raw: []byte(`{"messageKind":"FutureRequest","x":1}`)})
	a.send(&delta.SignOffRequest{QueryBase: delta.QueryBase{QueryId: "off"}})
	assert.IsType(t, &delta.SignOffResponse{}, a.next())
	h.addLeaf(t, "g", "y")
	a.quiet()
}

func TestRepository_Reconnect(t *testing.T) {
	j, err := journal.Open(journal.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	h := newHarness(t, Options{Journal: j})

	a := h.dial(t, "A")
	pa := a.signOn()
	a.subscribe("g")
	h.addLeaf(t, "g", "x")
	first, ok := a.next().(*delta.ChildAdded)
	require.True(t, ok)
	require.Equal(t, uint64(0), first.Sequence())

	require.NoError(t, a.c.Close())
	h.addLeaf(t, "g", "y")
	h.addLeaf(t, "g", "z")

	a2 := h.dial(t, "A2")
	last := uint64(0)
	a2.send(&delta.ReconnectRequest{QueryBase: delta.QueryBase{QueryId: "re"}, ParticipationId: pa,
		LastReceivedSequenceNumber: &last})
	resp, ok := a2.next().(*delta.ReconnectResponse)
	require.True(t, ok)
	require.NotNil(t, resp.LastSentSequenceNumber)
	assert.Equal(t, uint64(2), *resp.LastSentSequenceNumber)
	for _, want := range []model.NodeId{"y", "z"} {
		e, ok := a2.next().(*delta.ChildAdded)
		require.True(t, ok)
		assert.Equal(t, []model.NodeId{want}, e.NewChild.Ids())
	}

	h.addLeaf(t, "g", "w")
	live, ok := a2.next().(delta.Event)
	require.True(t, ok)
	assert.Equal(t, uint64(3), live.Sequence())

	a3 := h.dial(t, "A3")
	a3.send(&delta.ReconnectRequest{QueryBase: delta.QueryBase{QueryId: "dup"}, ParticipationId: pa})
	assert.Equal(t, delta.ProtocolError, a3.errorEvent().ErrorCode)

	a2.send(&delta.SignOffRequest{QueryBase: delta.QueryBase{QueryId: "off"}})
	assert.IsType(t, &delta.SignOffResponse{}, a2.next())
	a4 := h.dial(t, "A4")
	a4.send(&delta.ReconnectRequest{QueryBase: delta.QueryBase{QueryId: "gone"}, ParticipationId: pa})
	assert.Equal(t, delta.ProtocolError, a4.errorEvent().ErrorCode)
}

// brokenConn accepts clients but loses everything sent to them.
type brokenConn struct {
	connector.Handlers
}

func (*brokenConn) SendToClient(context.Context, string, delta.Content) error {
	return errors.New("link down")
}

func (*brokenConn) SendToAllClients(context.Context, delta.Content) error {
	return errors.New("link down")
}

func (*brokenConn) Close() error { return nil }

func TestRepository_CommunicationError(t *testing.T) {
	s := testutils.NewShapes()
	forest := model.NewForest()
	require.NoError(t, forest.AddPartition(s.NewGeometry("g")))
	var lock sync.Mutex
	var failed []string
	conn := &brokenConn{}
	repo, err := New(forest, s.KeyedMap(), conn, Options{OnCommunicationError: func(clientId string, _ error) {
		lock.Lock()
		defer lock.Unlock()
		failed = append(failed, clientId)
	}})
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	conn.Received(ctx, "A", &delta.SignOnRequest{QueryBase: delta.QueryBase{QueryId: "on"}, DeltaProtocolVersion: delta.ProtocolVersion})
	conn.Received(ctx, "A", &delta.SubscribeToPartitionContentsRequest{QueryBase: delta.QueryBase{QueryId: "s"}, Partition: "g"})
	require.NoError(t, repo.Edit("g", func(root *model.Node) error {
		return root.InsertChild(s.Parts, 0, s.NewLeaf("x", "x"))
	}))

	// the edit stands even though nobody could be told
	_, ok := repo.Nodes().TryGet("x")
	assert.True(t, ok)
	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, []string{"A", "A", "A"}, failed)
	clients := repo.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, []model.NodeId{"g"}, clients[0].Subscriptions)
	assert.Equal(t, uint64(1), clients[0].NextSequence)
}

func TestRepository_ClosedIgnoresMessages(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t, "A")
	a.signOn()
	require.NoError(t, h.repo.Close())

	a.send(&delta.ListPartitionsRequest{QueryBase: delta.QueryBase{QueryId: "ls"}})
	a.send(&delta.AddChild{CommandBase: delta.CommandBase{CommandId: "c1"}, Parent: "g",
		NewChild: h.leafChunk(t, "x"), Containment: h.s.Parts.Meta, Index: 0})
	a.quiet()
	_, ok := h.repo.Nodes().TryGet("x")
	assert.False(t, ok)
}
