package mapper

import (
	"errors"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/drpcorg/lwdelta/serialization"
	"github.com/drpcorg/lwdelta/utils"
)

var (
	ErrUnknownNode          = errors.New("lwdelta: unknown node")
	ErrUnknownPartition     = errors.New("lwdelta: unknown partition")
	ErrUnsupportedOperation = delta.ErrUnsupportedOperation
	ErrNotSignedOn          = errors.New("lwdelta: client is not signed on")
	ErrReplication          = errors.New("lwdelta: replication failed")
	ErrAlreadySignedOn      = errors.New("lwdelta: client is already signed on")
	ErrProtocolVersion      = errors.New("lwdelta: unsupported delta protocol version")
	ErrUnknownParticipation = errors.New("lwdelta: unknown participation")
)

var kinds = []struct {
	kind delta.ErrorKind
	errs []error
}{
	{delta.ProtocolError, []error{ErrUnsupportedOperation, ErrNotSignedOn, ErrAlreadySignedOn,
		ErrProtocolVersion, ErrUnknownParticipation,
		delta.ErrMalformedMessage, model.ErrUnsupportedNotification}},
	{delta.ResolutionError, []error{ErrUnknownNode, ErrUnknownPartition,
		model.ErrUnknownFeature, model.ErrPartitionUnknown, serialization.ErrUnresolvableNode}},
	{delta.ValueError, []error{model.ErrInvalidValue, model.ErrInvalidIndex, model.ErrUnsetFeature,
		model.ErrCycle, model.ErrNotContained, model.ErrNotPartition, model.ErrPartitionExists,
		nodemap.ErrDuplicateNode, serialization.ErrMalformedChunk}},
	{delta.TransportError, []error{utils.ErrClosed, utils.ErrOverflow}},
}

// Classify sorts an error into the kind reported to clients. Anything not
// recognised failed while applying and counts as a replication error.
func Classify(err error) delta.ErrorKind {
	for _, k := range kinds {
		for _, e := range k.errs {
			if errors.Is(err, e) {
				return k.kind
			}
		}
	}
	return delta.ReplicationError
}
