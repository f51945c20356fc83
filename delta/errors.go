package delta

type ErrorKind string

const (
	ProtocolError    ErrorKind = "ProtocolError"
	ResolutionError  ErrorKind = "ResolutionError"
	ValueError       ErrorKind = "ValueError"
	ReplicationError ErrorKind = "ReplicationError"
	TransportError   ErrorKind = "TransportError"
)

// ErrorEvent tells a single client that something it sent failed.
type ErrorEvent struct {
	EventBase
	ErrorCode ErrorKind `json:"errorCode"`
	Message   string    `json:"message"`
	QueryId   string    `json:"queryId,omitempty"`
}

func (*ErrorEvent) Kind() Kind { return "ErrorEvent" }

func (e *ErrorEvent) WithSequence(n uint64) Event { return resequence(e, n) }
