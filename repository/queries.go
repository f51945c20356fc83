package repository

import (
	"context"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/journal"
	"github.com/drpcorg/lwdelta/mapper"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/replicator"
	"github.com/drpcorg/lwdelta/serialization"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxAvailableIds bounds a single GetAvailableIds request.
const MaxAvailableIds = 1024

func (r *Repository) answer(ctx context.Context, ci *ClientInfo, q delta.Query) error {
	base := delta.QueryBase{QueryId: q.Id()}
	switch q := q.(type) {
	case *delta.SignOnRequest:
		return r.signOn(ctx, ci, q)
	case *delta.SignOffRequest:
		return r.signOff(ctx, ci, base)
	case *delta.ReconnectRequest:
		return r.reconnect(ctx, ci, q)
	case *delta.SubscribeToChangingPartitionsRequest:
		ci.setPreferences(preferences{creation: q.Creation, deletion: q.Deletion, subscribeCreated: q.Partitions})
		r.persist(ci)
		r.SendToClient(ctx, ci, &delta.SubscribeToChangingPartitionsResponse{QueryBase: base})
	case *delta.SubscribeToPartitionContentsRequest:
		return r.subscribe(ctx, ci, q)
	case *delta.UnsubscribeFromPartitionContentsRequest:
		ci.unsubscribe(q.Partition)
		r.persist(ci)
		r.SendToClient(ctx, ci, &delta.UnsubscribeFromPartitionContentsResponse{QueryBase: base})
	case *delta.ListPartitionsRequest:
		r.SendToClient(ctx, ci, &delta.ListPartitionsResponse{QueryBase: base, Partitions: r.Partitions()})
	case *delta.GetAvailableIdsRequest:
		if q.Count <= 0 || q.Count > MaxAvailableIds {
			return errors.Wrapf(model.ErrInvalidValue, "can not hand out %d ids", q.Count)
		}
		ids := make([]delta.NodeId, 0, q.Count)
		for i := 0; i < q.Count; i++ {
			ids = append(ids, delta.NodeId(uuid.Must(uuid.NewV7()).String()))
		}
		r.SendToClient(ctx, ci, &delta.GetAvailableIdsResponse{QueryBase: base, Ids: ids})
	default:
		return errors.Wrapf(mapper.ErrUnsupportedOperation, "%s", q.Kind())
	}
	return nil
}

func (r *Repository) signOn(ctx context.Context, ci *ClientInfo, q *delta.SignOnRequest) error {
	if q.DeltaProtocolVersion != delta.ProtocolVersion {
		return errors.Wrapf(mapper.ErrProtocolVersion, "%q, this repository speaks %q", q.DeltaProtocolVersion, delta.ProtocolVersion)
	}
	if ci.SignedOn() {
		return errors.Wrapf(mapper.ErrAlreadySignedOn, "as %s", ci.Participation())
	}
	participation := uuid.Must(uuid.NewV7()).String()
	ci.signOn(participation, q.ClientId)
	r.participations.Store(participation, ci)
	r.persist(ci)
	r.log.InfoCtx(ctx, "repository: signed on", "name", q.ClientId, "participation", participation)
	r.SendToClient(ctx, ci, &delta.SignOnResponse{QueryBase: delta.QueryBase{QueryId: q.QueryId}, ParticipationId: participation})
	return nil
}

func (r *Repository) signOff(ctx context.Context, ci *ClientInfo, base delta.QueryBase) error {
	participation := ci.Participation()
	r.SendToClient(ctx, ci, &delta.SignOffResponse{QueryBase: base})
	r.participations.Compute(participation, func(old *ClientInfo, loaded bool) (*ClientInfo, bool) {
		return old, !loaded || old == ci
	})
	ci.signOff()
	if r.opts.Journal != nil {
		if err := r.opts.Journal.Forget(participation); err != nil {
			r.log.WarnCtx(ctx, "repository: can not forget participation", "participation", participation, "err", err)
		}
	}
	r.log.InfoCtx(ctx, "repository: signed off", "participation", participation)
	return nil
}

// reconnect hands a parked participation to a new connection: the client
// gets the number of the last event sent to it, then every event after
// the one it reports as last received, then live events.
func (r *Repository) reconnect(ctx context.Context, ci *ClientInfo, q *delta.ReconnectRequest) error {
	if r.opts.Journal == nil {
		return errors.Wrap(mapper.ErrUnsupportedOperation, "reconnect needs a journal")
	}
	if ci.SignedOn() {
		return errors.Wrapf(mapper.ErrAlreadySignedOn, "as %s", ci.Participation())
	}
	clientId := ci.ClientId()
	var resumed *ClientInfo
	var err error
	r.participations.Compute(q.ParticipationId, func(old *ClientInfo, loaded bool) (*ClientInfo, bool) {
		if loaded {
			if !old.attached.CompareAndSwap(false, true) {
				err = errors.Wrapf(mapper.ErrAlreadySignedOn, "%s is connected", q.ParticipationId)
				return old, false
			}
			resumed = old
			return old, false
		}
		state, lerr := r.opts.Journal.LoadParticipation(q.ParticipationId)
		if lerr != nil {
			err = errors.Wrapf(mapper.ErrUnknownParticipation, "%s: %v", q.ParticipationId, lerr)
			return nil, true
		}
		next := state.NextSequence
		if head, ok, herr := r.opts.Journal.Head(q.ParticipationId); herr == nil && ok && head+1 > next {
			next = head + 1
		}
		resumed = restoreClient(state, next)
		resumed.attached.Store(true)
		return resumed, false
	})
	if err != nil {
		return err
	}
	resumed.stopExpiry()

	resumed.sendLock.Lock()
	defer resumed.sendLock.Unlock()
	var from uint64
	if q.LastReceivedSequenceNumber != nil {
		from = *q.LastReceivedSequenceNumber + 1
	}
	missed, err := r.opts.Journal.Since(q.ParticipationId, from)
	if err != nil {
		resumed.attached.Store(false)
		resumed.park(r.opts.ReconnectWindow, func() { r.expire(resumed, q.ParticipationId) })
		if errors.Is(err, journal.ErrTruncated) {
			return errors.Wrapf(mapper.ErrUnknownParticipation, "%v", err)
		}
		return err
	}
	resumed.route.Store(&clientId)
	r.clients.Store(clientId, resumed)

	resp := &delta.ReconnectResponse{QueryBase: delta.QueryBase{QueryId: q.QueryId}}
	if next := resumed.seq.Load(); next > 0 {
		last := next - 1
		resp.LastSentSequenceNumber = &last
	}
	if err := r.conn.SendToClient(ctx, clientId, resp); err != nil {
		r.communicationError(ctx, clientId, err)
		return nil
	}
	for _, e := range missed {
		if err := r.conn.SendToClient(ctx, clientId, e); err != nil {
			r.communicationError(ctx, clientId, err)
			return nil
		}
	}
	r.log.InfoCtx(ctx, "repository: reconnected", "participation", q.ParticipationId, "replayed", len(missed))
	return nil
}

// subscribe sends the partition as it is and starts the client on its
// events, both under the partition lock so nothing falls in between.
func (r *Repository) subscribe(ctx context.Context, ci *ClientInfo, q *delta.SubscribeToPartitionContentsRequest) error {
	return r.rep.Do(q.Partition, func(p *replicator.PartitionReplicator) error {
		if p.Root().Id() != q.Partition {
			return errors.Wrapf(mapper.ErrUnknownPartition, "%s is not a partition", q.Partition)
		}
		chunk, err := serialization.Serialize(p.Root(), r.opts.Converter)
		if err != nil {
			return err
		}
		ci.subscribe(q.Partition)
		r.persist(ci)
		r.SendToClient(ctx, ci, &delta.SubscribeToPartitionContentsResponse{
			QueryBase: delta.QueryBase{QueryId: q.QueryId},
			Contents:  chunk,
		})
		return nil
	})
}
