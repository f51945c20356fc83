package tcpconn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCP_Exchange(t *testing.T) {
	ctx := context.Background()
	server := NewServer(Options{})
	defer server.Close()

	var lock sync.Mutex
	var links []string
	var got []delta.Content
	server.OnReceive(func(_ context.Context, id string, c delta.Content) {
		lock.Lock()
		defer lock.Unlock()
		links = append(links, id)
		got = append(got, c)
	})
	gone := make(chan string, 1)
	server.OnDisconnect(func(id string) { gone <- id })

	require.NoError(t, server.Listen("tcp://127.0.0.1:0"))
	addr, ok := server.Addr("tcp://127.0.0.1:0")
	require.True(t, ok)

	client, err := Dial("tcp://"+addr.String(), Options{})
	require.NoError(t, err)
	replies := make(chan delta.Content, 1)
	client.OnReceive(func(_ context.Context, c delta.Content) { replies <- c })

	require.NoError(t, client.Send(ctx, &delta.SignOnRequest{QueryBase: delta.QueryBase{QueryId: "q1"},
		DeltaProtocolVersion: delta.ProtocolVersion, ClientId: "A"}))
	require.NoError(t, client.Send(ctx, &delta.ListPartitionsRequest{QueryBase: delta.QueryBase{QueryId: "q2"}}))

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(got) == 2
	}, 5*time.Second, 5*time.Millisecond)
	lock.Lock()
	link := links[0]
	assert.Equal(t, link, links[1])
	assert.Equal(t, "A", got[0].(*delta.SignOnRequest).ClientId)
	assert.IsType(t, &delta.ListPartitionsRequest{}, got[1])
	lock.Unlock()

	require.NoError(t, server.SendToClient(ctx, link, &delta.SignOnResponse{QueryBase: delta.QueryBase{QueryId: "q1"},
		ParticipationId: "p"}))
	select {
	case c := <-replies:
		assert.Equal(t, "p", c.(*delta.SignOnResponse).ParticipationId)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
	assert.Equal(t, 1, testutil.CollectAndCount(server.Collector()))

	require.NoError(t, client.Close())
	select {
	case id := <-gone:
		assert.Equal(t, link, id)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not notice the link going away")
	}
}
