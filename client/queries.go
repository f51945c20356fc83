package client

import (
	"context"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// query sends q and waits for the answer with the same query id.
func query[T delta.Query](ctx context.Context, c *Client, q delta.Query) (T, error) {
	var zero T
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	ch := make(chan delta.Content, 1)
	c.pending.Store(q.Id(), ch)
	defer c.pending.Delete(q.Id())
	if err := c.transport.Send(ctx, q); err != nil {
		return zero, errors.Wrapf(err, "send %s", q.Kind())
	}
	select {
	case <-ctx.Done():
		return zero, errors.Wrapf(ctx.Err(), "waiting for %s", q.Kind())
	case <-c.ctx.Done():
		return zero, errors.Wrapf(c.ctx.Err(), "waiting for %s", q.Kind())
	case m := <-ch:
		if fail, ok := m.(*delta.ErrorEvent); ok {
			return zero, &RemoteError{fail}
		}
		resp, ok := m.(T)
		if !ok {
			return zero, errors.Wrapf(ErrUnexpected, "%s for %s", m.Kind(), q.Kind())
		}
		return resp, nil
	}
}

func newQuery() delta.QueryBase {
	return delta.QueryBase{QueryId: ulid.Make().String()}
}

// SignOn opens a participation. Edits are refused before it.
func (c *Client) SignOn(ctx context.Context) (string, error) {
	resp, err := query[*delta.SignOnResponse](ctx, c, &delta.SignOnRequest{
		QueryBase:            newQuery(),
		DeltaProtocolVersion: delta.ProtocolVersion,
		ClientId:             c.opts.Name,
	})
	if err != nil {
		return "", err
	}
	return resp.ParticipationId, nil
}

// SignOff ends the participation; the replica keeps its partitions.
func (c *Client) SignOff(ctx context.Context) error {
	_, err := query[*delta.SignOffResponse](ctx, c, &delta.SignOffRequest{QueryBase: newQuery()})
	return err
}

// Subscribe installs partition in the replica and keeps it up to date.
func (c *Client) Subscribe(ctx context.Context, partition model.NodeId) error {
	_, err := query[*delta.SubscribeToPartitionContentsResponse](ctx, c, &delta.SubscribeToPartitionContentsRequest{
		QueryBase: newQuery(),
		Partition: partition,
	})
	return err
}

// Unsubscribe removes partition from the replica once the repository
// stopped sending its events.
func (c *Client) Unsubscribe(ctx context.Context, partition model.NodeId) error {
	base := newQuery()
	c.unsubscribing.Store(base.QueryId, partition)
	_, err := query[*delta.UnsubscribeFromPartitionContentsResponse](ctx, c, &delta.UnsubscribeFromPartitionContentsRequest{
		QueryBase: base,
		Partition: partition,
	})
	if err != nil {
		c.unsubscribing.Delete(base.QueryId)
	}
	return err
}

// SubscribeToChangingPartitions asks for notices of partitions being added
// or deleted; with partitions set, partitions this client adds are
// subscribed to right away.
func (c *Client) SubscribeToChangingPartitions(ctx context.Context, creation, deletion, partitions bool) error {
	_, err := query[*delta.SubscribeToChangingPartitionsResponse](ctx, c, &delta.SubscribeToChangingPartitionsRequest{
		QueryBase:  newQuery(),
		Creation:   creation,
		Deletion:   deletion,
		Partitions: partitions,
	})
	return err
}

func (c *Client) ListPartitions(ctx context.Context) ([]delta.PartitionSummary, error) {
	resp, err := query[*delta.ListPartitionsResponse](ctx, c, &delta.ListPartitionsRequest{QueryBase: newQuery()})
	if err != nil {
		return nil, err
	}
	return resp.Partitions, nil
}

// GetAvailableIds reserves n fresh node ids.
func (c *Client) GetAvailableIds(ctx context.Context, n int) ([]model.NodeId, error) {
	resp, err := query[*delta.GetAvailableIdsResponse](ctx, c, &delta.GetAvailableIdsRequest{
		QueryBase: newQuery(),
		Count:     n,
	})
	if err != nil {
		return nil, err
	}
	return resp.Ids, nil
}
