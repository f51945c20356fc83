package delta

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var factories = map[Kind]func() Content{}

func register(fs ...func() Content) {
	for _, f := range fs {
		factories[f().Kind()] = f
	}
}

func init() {
	register(
		func() Content { return &AddPartition{} },
		func() Content { return &DeletePartition{} },
		func() Content { return &AddProperty{} },
		func() Content { return &DeleteProperty{} },
		func() Content { return &ChangeProperty{} },
		func() Content { return &AddChild{} },
		func() Content { return &DeleteChild{} },
		func() Content { return &ReplaceChild{} },
		func() Content { return &MoveChildFromOtherContainment{} },
		func() Content { return &MoveChildFromOtherContainmentInSameParent{} },
		func() Content { return &MoveChildInSameContainment{} },
		func() Content { return &MoveAndReplaceChildFromOtherContainment{} },
		func() Content { return &AddAnnotation{} },
		func() Content { return &DeleteAnnotation{} },
		func() Content { return &MoveAnnotationFromOtherParent{} },
		func() Content { return &MoveAnnotationInSameParent{} },
		func() Content { return &AddReference{} },
		func() Content { return &DeleteReference{} },
		func() Content { return &ChangeReference{} },
	)
	register(
		func() Content { return &PartitionAdded{} },
		func() Content { return &PartitionDeleted{} },
		func() Content { return &PropertyAdded{} },
		func() Content { return &PropertyDeleted{} },
		func() Content { return &PropertyChanged{} },
		func() Content { return &ChildAdded{} },
		func() Content { return &ChildDeleted{} },
		func() Content { return &ChildReplaced{} },
		func() Content { return &ChildMovedFromOtherContainment{} },
		func() Content { return &ChildMovedFromOtherContainmentInSameParent{} },
		func() Content { return &ChildMovedInSameContainment{} },
		func() Content { return &ChildMovedAndReplacedFromOtherContainment{} },
		func() Content { return &AnnotationAdded{} },
		func() Content { return &AnnotationDeleted{} },
		func() Content { return &AnnotationMovedFromOtherParent{} },
		func() Content { return &AnnotationMovedInSameParent{} },
		func() Content { return &ReferenceAdded{} },
		func() Content { return &ReferenceDeleted{} },
		func() Content { return &ReferenceChanged{} },
		func() Content { return &ErrorEvent{} },
	)
	register(
		func() Content { return &SignOnRequest{} },
		func() Content { return &SignOnResponse{} },
		func() Content { return &SignOffRequest{} },
		func() Content { return &SignOffResponse{} },
		func() Content { return &ReconnectRequest{} },
		func() Content { return &ReconnectResponse{} },
		func() Content { return &SubscribeToChangingPartitionsRequest{} },
		func() Content { return &SubscribeToChangingPartitionsResponse{} },
		func() Content { return &SubscribeToPartitionContentsRequest{} },
		func() Content { return &SubscribeToPartitionContentsResponse{} },
		func() Content { return &UnsubscribeFromPartitionContentsRequest{} },
		func() Content { return &UnsubscribeFromPartitionContentsResponse{} },
		func() Content { return &ListPartitionsRequest{} },
		func() Content { return &ListPartitionsResponse{} },
		func() Content { return &GetAvailableIdsRequest{} },
		func() Content { return &GetAvailableIdsResponse{} },
	)
}

type envelope struct {
	MessageKind Kind `json:"messageKind"`
}

// Encode renders c as one JSON object tagged with "messageKind".
func Encode(c Content) ([]byte, error) {
	if u, ok := c.(*UnknownMessage); ok {
		return u.Raw, nil
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", c.Kind())
	}
	head, _ := json.Marshal(envelope{MessageKind: c.Kind()})
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	return append(out, body[1:]...), nil
}

// Decode parses one message. A kind this build does not know is not an
// error: it comes back as *UnknownMessage.
func Decode(data []byte) (Content, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	if env.MessageKind == "" {
		return nil, errors.Wrap(ErrMalformedMessage, "no messageKind")
	}
	factory, ok := factories[env.MessageKind]
	if !ok {
		return &UnknownMessage{MessageKind: env.MessageKind, Raw: append([]byte(nil), data...)}, nil
	}
	c := factory()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s: %v", env.MessageKind, err)
	}
	return c, nil
}

// Kinds lists every message kind the codec knows.
func Kinds() []Kind {
	out := make([]Kind, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// New makes an empty message of the given kind.
func New(k Kind) (Content, bool) {
	f, ok := factories[k]
	if !ok {
		return nil, false
	}
	return f(), true
}
