// Package delta defines the messages exchanged between a repository and its
// clients: commands, events and queries, all of them Content.
package delta

import (
	"errors"

	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/serialization"
)

type Kind string

type (
	NodeId        = model.NodeId
	MetaPointer   = model.MetaPointer
	CommandSource = model.CommandSource
	Chunk         = serialization.Chunk
	Target        = serialization.SerializedReferenceTarget
)

var (
	ErrUnsupportedOperation = errors.New("lwdelta: unsupported operation")
	ErrMalformedMessage     = errors.New("lwdelta: malformed message")
)

// Content is anything that travels between a repository and a client.
type Content interface {
	Kind() Kind
	content()
}

// Command is a client-authored change request.
type Command interface {
	Content
	Source() CommandSource
	// Stamp records the participation the command arrived on.
	Stamp(participation string)
	command()
}

// Event reports an applied change (or an error) to a client.
type Event interface {
	Content
	Origins() []CommandSource
	Sequence() uint64
	// WithSequence returns a copy carrying sequence number n.
	WithSequence(n uint64) Event
	event()
}

// Query is a request/response exchange correlated by QueryId.
type Query interface {
	Content
	Id() string
	query()
}

type CommandBase struct {
	CommandId       string `json:"commandId"`
	ParticipationId string `json:"participationId,omitempty"`
}

func (c *CommandBase) Source() CommandSource {
	return CommandSource{ParticipationId: c.ParticipationId, CommandId: c.CommandId}
}

func (c *CommandBase) Stamp(participation string) { c.ParticipationId = participation }
func (*CommandBase) content()                     {}
func (*CommandBase) command()                     {}

type EventBase struct {
	OriginCommands []CommandSource `json:"originCommands"`
	SequenceNumber uint64          `json:"sequenceNumber"`
}

func (e *EventBase) Origins() []CommandSource { return e.OriginCommands }
func (e *EventBase) Sequence() uint64         { return e.SequenceNumber }
func (*EventBase) content()                   {}
func (*EventBase) event()                     {}

type QueryBase struct {
	QueryId string `json:"queryId"`
}

func (q *QueryBase) Id() string { return q.QueryId }
func (*QueryBase) content()     {}
func (*QueryBase) query()       {}

// UnknownMessage stands in for a message kind this build does not know.
type UnknownMessage struct {
	MessageKind Kind
	Raw         []byte
}

func (u *UnknownMessage) Kind() Kind { return u.MessageKind }
func (*UnknownMessage) content()     {}

// RequiresParticipationId tells whether c may only flow once the client
// signed on. Handshake messages do not.
func RequiresParticipationId(c Content) bool {
	switch c.(type) {
	case *SignOnRequest, *SignOnResponse, *ReconnectRequest, *ReconnectResponse:
		return false
	}
	return true
}

// IsPartitionCreation and IsPartitionDeletion single out the forest-level
// notices the fan-out policy treats specially.
func IsPartitionCreation(c Content) bool {
	_, ok := c.(*PartitionAdded)
	return ok
}

func IsPartitionDeletion(c Content) bool {
	_, ok := c.(*PartitionDeleted)
	return ok
}

func (e *EventBase) base() *EventBase { return e }

func resequence[T any, P interface {
	*T
	Event
	base() *EventBase
}](e P, n uint64) Event {
	c := *e
	P(&c).base().SequenceNumber = n
	return P(&c)
}
