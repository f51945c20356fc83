// Package journal keeps, per participation, the events a repository sent
// and the state needed to take a reconnecting client back.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	perrors "github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("lwdelta: participation is not journaled")
	ErrTruncated = errors.New("lwdelta: journal no longer holds the requested events")
	ErrClosed    = errors.New("lwdelta: journal is closed")
)

const (
	eventPrefix         = 'E'
	participationPrefix = 'P'
)

type Options struct {
	Dir string
	// MaxLen is how many events are kept per participation; 0 keeps all.
	MaxLen        uint64
	HeadCacheSize int
	// Sync makes every append durable before it returns.
	Sync   bool
	Logger utils.Logger
	Pebble *pebble.Options
}

func (o *Options) SetDefaults() {
	if o.HeadCacheSize <= 0 {
		o.HeadCacheSize = 4096
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
	if o.Pebble == nil {
		o.Pebble = &pebble.Options{}
	}
}

// Participation is what a repository remembers of one client session.
type Participation struct {
	Id            string         `json:"id"`
	ClientId      string         `json:"clientId"`
	Subscriptions []model.NodeId `json:"subscriptions,omitempty"`
	// preferences for forest-level events
	Creation         bool   `json:"creation"`
	Deletion         bool   `json:"deletion"`
	SubscribeCreated bool   `json:"subscribeCreated"`
	NextSequence     uint64 `json:"nextSequence"`
}

type Journal struct {
	db    *pebble.DB
	opts  Options
	heads *lru.Cache[string, uint64]
	// appends to one participation are already serialized by the caller;
	// lock guards trimming against Forget and every use of db against Close
	lock   sync.RWMutex
	closed bool
}

func Open(opts Options) (*Journal, error) {
	opts.SetDefaults()
	db, err := pebble.Open(opts.Dir, opts.Pebble)
	if err != nil {
		return nil, perrors.Wrapf(err, "open journal at %s", opts.Dir)
	}
	heads, err := lru.New[string, uint64](opts.HeadCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, opts: opts, heads: heads}, nil
}

func (j *Journal) Close() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func participationHash(participation string) []byte {
	return binary.BigEndian.AppendUint64(nil, xxhash.Sum64String(participation))
}

func eventKey(participation string, seq uint64) []byte {
	key := append([]byte{eventPrefix}, participationHash(participation)...)
	return binary.BigEndian.AppendUint64(key, seq)
}

// eventBounds spans every event key of a participation.
func eventBounds(participation string) (lower, upper []byte) {
	prefix := append([]byte{eventPrefix}, participationHash(participation)...)
	lower = binary.BigEndian.AppendUint64(append([]byte(nil), prefix...), 0)
	upper = binary.BigEndian.AppendUint64(append([]byte(nil), prefix...), ^uint64(0))
	return lower, append(upper, 0)
}

func participationKey(participation string) []byte {
	return append([]byte{participationPrefix}, participationHash(participation)...)
}

func (j *Journal) writeOptions() *pebble.WriteOptions {
	if j.opts.Sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Append stores e under its sequence number and drops events that fall
// out of the MaxLen window.
func (j *Journal) Append(participation string, e delta.Event) error {
	data, err := delta.Encode(e)
	if err != nil {
		return err
	}
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.closed {
		return ErrClosed
	}
	seq := e.Sequence()
	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(eventKey(participation, seq), data, nil); err != nil {
		return err
	}
	if j.opts.MaxLen > 0 && seq >= j.opts.MaxLen {
		from, _ := eventBounds(participation)
		if err := batch.DeleteRange(from, eventKey(participation, seq-j.opts.MaxLen+1), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(j.writeOptions()); err != nil {
		return perrors.Wrapf(err, "append %s #%d", e.Kind(), seq)
	}
	if head, ok := j.heads.Get(participation); !ok || head < seq {
		j.heads.Add(participation, seq)
	}
	AppendCount.Inc()
	return nil
}

// Head returns the highest sequence number journaled for participation.
func (j *Journal) Head(participation string) (uint64, bool, error) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	if j.closed {
		return 0, false, ErrClosed
	}
	if head, ok := j.heads.Get(participation); ok {
		return head, true, nil
	}
	lower, upper := eventBounds(participation)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, false, iter.Error()
	}
	head := seqOf(iter.Key())
	j.heads.Add(participation, head)
	return head, true, nil
}

func seqOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// Since returns the events of participation numbered from and up, in
// order. ErrTruncated means some of them were already trimmed away.
func (j *Journal) Since(participation string, from uint64) ([]delta.Event, error) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}
	_, upper := eventBounds(participation)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: eventKey(participation, 0), UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var events []delta.Event
	expect := from
	for valid := iter.SeekGE(eventKey(participation, from)); valid; valid = iter.Next() {
		seq := seqOf(iter.Key())
		if seq != expect {
			return nil, perrors.Wrapf(ErrTruncated, "%s: wanted #%d, found #%d", participation, expect, seq)
		}
		c, err := delta.Decode(iter.Value())
		if err != nil {
			return nil, perrors.Wrapf(err, "%s #%d", participation, seq)
		}
		e, ok := c.(delta.Event)
		if !ok {
			return nil, perrors.Wrapf(delta.ErrMalformedMessage, "%s #%d is a %s", participation, seq, c.Kind())
		}
		events = append(events, e)
		expect++
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		// nothing at or after from: fine unless from itself was trimmed
		if iter.First() && seqOf(iter.Key()) > from {
			return nil, perrors.Wrapf(ErrTruncated, "%s: #%d is gone", participation, from)
		}
	}
	return events, nil
}

func (j *Journal) SaveParticipation(p Participation) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.closed {
		return ErrClosed
	}
	return j.db.Set(participationKey(p.Id), data, j.writeOptions())
}

func (j *Journal) LoadParticipation(id string) (Participation, error) {
	var p Participation
	j.lock.RLock()
	defer j.lock.RUnlock()
	if j.closed {
		return p, ErrClosed
	}
	val, closer, err := j.db.Get(participationKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return p, perrors.Wrapf(ErrNotFound, "%s", id)
	}
	if err != nil {
		return p, err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, &p); err != nil {
		return p, perrors.Wrapf(err, "participation %s", id)
	}
	if p.Id != id {
		return Participation{}, perrors.Wrapf(ErrNotFound, "%s collides with %s", id, p.Id)
	}
	return p, nil
}

// Forget drops the state and every event of participation.
func (j *Journal) Forget(participation string) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.closed {
		return ErrClosed
	}
	batch := j.db.NewBatch()
	defer batch.Close()
	lower, upper := eventBounds(participation)
	if err := batch.DeleteRange(lower, upper, nil); err != nil {
		return err
	}
	if err := batch.Delete(participationKey(participation), nil); err != nil {
		return err
	}
	j.heads.Remove(participation)
	j.opts.Logger.Debug("journal: participation forgotten", "participation", participation)
	return batch.Commit(j.writeOptions())
}
