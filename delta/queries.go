package delta

const ProtocolVersion = "2025.1"

type SignOnRequest struct {
	QueryBase
	DeltaProtocolVersion string `json:"deltaProtocolVersion"`
	ClientId             string `json:"clientId"`
}

type SignOnResponse struct {
	QueryBase
	ParticipationId string `json:"participationId"`
}

type SignOffRequest struct {
	QueryBase
}

type SignOffResponse struct {
	QueryBase
}

// ReconnectRequest resumes an earlier participation after a transport
// drop. Events after LastReceivedSequenceNumber are replayed; all of them
// when it is nil.
type ReconnectRequest struct {
	QueryBase
	ParticipationId            string  `json:"participationId"`
	LastReceivedSequenceNumber *uint64 `json:"lastReceivedSequenceNumber"`
}

// ReconnectResponse is sent before the replayed events. LastSentSequenceNumber
// is nil when the participation never got an event.
type ReconnectResponse struct {
	QueryBase
	LastSentSequenceNumber *uint64 `json:"lastSentSequenceNumber"`
}

type SubscribeToChangingPartitionsRequest struct {
	QueryBase
	Creation   bool `json:"creation"`
	Deletion   bool `json:"deletion"`
	Partitions bool `json:"partitions"`
}

type SubscribeToChangingPartitionsResponse struct {
	QueryBase
}

type SubscribeToPartitionContentsRequest struct {
	QueryBase
	Partition NodeId `json:"partition"`
}

type SubscribeToPartitionContentsResponse struct {
	QueryBase
	Contents Chunk `json:"contents"`
}

type UnsubscribeFromPartitionContentsRequest struct {
	QueryBase
	Partition NodeId `json:"partition"`
}

type UnsubscribeFromPartitionContentsResponse struct {
	QueryBase
}

type ListPartitionsRequest struct {
	QueryBase
}

type PartitionSummary struct {
	Id         NodeId      `json:"id"`
	Classifier MetaPointer `json:"classifier"`
}

type ListPartitionsResponse struct {
	QueryBase
	Partitions []PartitionSummary `json:"partitions"`
}

type GetAvailableIdsRequest struct {
	QueryBase
	Count int `json:"count"`
}

type GetAvailableIdsResponse struct {
	QueryBase
	Ids []NodeId `json:"ids"`
}

func (*SignOnRequest) Kind() Kind                            { return "SignOnRequest" }
func (*SignOnResponse) Kind() Kind                           { return "SignOnResponse" }
func (*SignOffRequest) Kind() Kind                           { return "SignOffRequest" }
func (*SignOffResponse) Kind() Kind                          { return "SignOffResponse" }
func (*ReconnectRequest) Kind() Kind                         { return "ReconnectRequest" }
func (*ReconnectResponse) Kind() Kind                        { return "ReconnectResponse" }
func (*SubscribeToChangingPartitionsRequest) Kind() Kind     { return "SubscribeToChangingPartitionsRequest" }
func (*SubscribeToChangingPartitionsResponse) Kind() Kind    { return "SubscribeToChangingPartitionsResponse" }
func (*SubscribeToPartitionContentsRequest) Kind() Kind      { return "SubscribeToPartitionContentsRequest" }
func (*SubscribeToPartitionContentsResponse) Kind() Kind     { return "SubscribeToPartitionContentsResponse" }
func (*UnsubscribeFromPartitionContentsRequest) Kind() Kind  { return "UnsubscribeFromPartitionContentsRequest" }
func (*UnsubscribeFromPartitionContentsResponse) Kind() Kind { return "UnsubscribeFromPartitionContentsResponse" }
func (*ListPartitionsRequest) Kind() Kind                    { return "ListPartitionsRequest" }
func (*ListPartitionsResponse) Kind() Kind                   { return "ListPartitionsResponse" }
func (*GetAvailableIdsRequest) Kind() Kind                   { return "GetAvailableIdsRequest" }
func (*GetAvailableIdsResponse) Kind() Kind                  { return "GetAvailableIdsResponse" }
