package repository

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/journal"
	"github.com/drpcorg/lwdelta/model"
)

type preferences struct {
	creation         bool
	deletion         bool
	subscribeCreated bool
}

// ClientInfo is the repository's view of one client: its participation,
// what it listens to and the numbering of the events it got.
type ClientInfo struct {
	// route is the connector id events go to; nil while the client is
	// parked after a disconnect
	route    atomic.Pointer[string]
	attached atomic.Bool
	signedOn atomic.Bool
	seq      atomic.Uint64

	lock          sync.Mutex
	participation string
	name          string
	subscriptions map[model.NodeId]struct{}
	prefs         preferences
	expiry        *time.Timer

	// sendLock keeps sequence assignment and the hand-off to the
	// transport in one order
	sendLock sync.Mutex
}

func newClient(clientId string) *ClientInfo {
	ci := &ClientInfo{subscriptions: make(map[model.NodeId]struct{})}
	ci.route.Store(&clientId)
	ci.attached.Store(true)
	return ci
}

// restoreClient rebuilds a parked client from its journaled state.
func restoreClient(state journal.Participation, next uint64) *ClientInfo {
	ci := &ClientInfo{
		participation: state.Id,
		name:          state.ClientId,
		subscriptions: make(map[model.NodeId]struct{}, len(state.Subscriptions)),
		prefs: preferences{
			creation:         state.Creation,
			deletion:         state.Deletion,
			subscribeCreated: state.SubscribeCreated,
		},
	}
	for _, id := range state.Subscriptions {
		ci.subscriptions[id] = struct{}{}
	}
	ci.seq.Store(next)
	ci.signedOn.Store(true)
	return ci
}

// IncrementAndGetSequenceNumber hands out 0, 1, 2... without gaps.
func (ci *ClientInfo) IncrementAndGetSequenceNumber() uint64 {
	return ci.seq.Add(1) - 1
}

// ClientId is the connector id of the client, empty while it is parked.
func (ci *ClientInfo) ClientId() string {
	if id := ci.route.Load(); id != nil {
		return *id
	}
	return ""
}

func (ci *ClientInfo) SignedOn() bool {
	return ci.signedOn.Load()
}

func (ci *ClientInfo) Participation() string {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	return ci.participation
}

func (ci *ClientInfo) signOn(participation, name string) {
	ci.lock.Lock()
	ci.participation = participation
	ci.name = name
	ci.lock.Unlock()
	ci.signedOn.Store(true)
}

func (ci *ClientInfo) signOff() {
	ci.signedOn.Store(false)
	ci.lock.Lock()
	defer ci.lock.Unlock()
	ci.participation = ""
	clear(ci.subscriptions)
	ci.prefs = preferences{}
}

func (ci *ClientInfo) subscribe(partition model.NodeId) {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	ci.subscriptions[partition] = struct{}{}
}

func (ci *ClientInfo) unsubscribe(partition model.NodeId) {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	delete(ci.subscriptions, partition)
}

func (ci *ClientInfo) setPreferences(p preferences) {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	ci.prefs = p
}

// Subscriptions lists the subscribed partitions, sorted.
func (ci *ClientInfo) Subscriptions() []model.NodeId {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	ids := make([]model.NodeId, 0, len(ci.subscriptions))
	for id := range ci.subscriptions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (ci *ClientInfo) subscribedAny(partitions []model.NodeId) bool {
	for _, id := range partitions {
		if _, ok := ci.subscriptions[id]; ok {
			return true
		}
	}
	return false
}

// arrivesOnly tells whether the client sees partition to but not from.
func (ci *ClientInfo) arrivesOnly(to, from model.NodeId) bool {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	_, in := ci.subscriptions[to]
	_, out := ci.subscriptions[from]
	return in && !out
}

// originates tells whether one of origins was sent by this client.
func (ci *ClientInfo) originates(origins []delta.CommandSource) bool {
	for _, o := range origins {
		if o.ParticipationId != "" && o.ParticipationId == ci.participation {
			return true
		}
	}
	return false
}

// admit decides whether a broadcast reaches the client and applies the
// subscription side effects of partition creation and deletion.
func (ci *ClientInfo) admit(affected []model.NodeId, origins []delta.CommandSource, creation, deletion bool) bool {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	originator := ci.originates(origins)
	switch {
	case deletion:
		deliver := ci.prefs.deletion || originator || ci.subscribedAny(affected)
		for _, id := range affected {
			delete(ci.subscriptions, id)
		}
		return deliver
	case creation:
		if originator && ci.prefs.subscribeCreated {
			for _, id := range affected {
				ci.subscriptions[id] = struct{}{}
			}
		}
		return ci.prefs.creation || ci.subscribedAny(affected)
	}
	return ci.subscribedAny(affected)
}

// state is what the journal keeps of the client.
func (ci *ClientInfo) state() journal.Participation {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	subs := make([]model.NodeId, 0, len(ci.subscriptions))
	for id := range ci.subscriptions {
		subs = append(subs, id)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	return journal.Participation{
		Id:               ci.participation,
		ClientId:         ci.name,
		Subscriptions:    subs,
		Creation:         ci.prefs.creation,
		Deletion:         ci.prefs.deletion,
		SubscribeCreated: ci.prefs.subscribeCreated,
		NextSequence:     ci.seq.Load(),
	}
}

func (ci *ClientInfo) park(window time.Duration, expire func()) {
	ci.route.Store(nil)
	ci.lock.Lock()
	defer ci.lock.Unlock()
	if ci.expiry != nil {
		ci.expiry.Stop()
	}
	ci.expiry = time.AfterFunc(window, expire)
}

func (ci *ClientInfo) stopExpiry() {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	if ci.expiry != nil {
		ci.expiry.Stop()
		ci.expiry = nil
	}
}

// ClientSummary is a snapshot of a client for inspection.
type ClientSummary struct {
	ClientId      string
	Name          string
	Participation string
	SignedOn      bool
	Connected     bool
	Subscriptions []model.NodeId
	NextSequence  uint64
}

func (ci *ClientInfo) summary() ClientSummary {
	st := ci.state()
	return ClientSummary{
		ClientId:      ci.ClientId(),
		Name:          st.ClientId,
		Participation: st.Id,
		SignedOn:      ci.SignedOn(),
		Connected:     ci.route.Load() != nil,
		Subscriptions: st.Subscriptions,
		NextSequence:  st.NextSequence,
	}
}
