package delta

type PartitionAdded struct {
	EventBase
	NewPartition Chunk `json:"newPartition"`
}

type PartitionDeleted struct {
	EventBase
	DeletedPartition   NodeId   `json:"deletedPartition"`
	DeletedDescendants []NodeId `json:"deletedDescendants"`
}

type PropertyAdded struct {
	EventBase
	Node     NodeId      `json:"node"`
	Property MetaPointer `json:"property"`
	NewValue *string     `json:"newValue"`
}

type PropertyDeleted struct {
	EventBase
	Node     NodeId      `json:"node"`
	Property MetaPointer `json:"property"`
	OldValue *string     `json:"oldValue"`
}

type PropertyChanged struct {
	EventBase
	Node     NodeId      `json:"node"`
	Property MetaPointer `json:"property"`
	NewValue *string     `json:"newValue"`
	OldValue *string     `json:"oldValue"`
}

type ChildAdded struct {
	EventBase
	Parent      NodeId      `json:"parent"`
	NewChild    Chunk       `json:"newChild"`
	Containment MetaPointer `json:"containment"`
	Index       int         `json:"index"`
}

type ChildDeleted struct {
	EventBase
	Parent             NodeId      `json:"parent"`
	Containment        MetaPointer `json:"containment"`
	Index              int         `json:"index"`
	DeletedChild       NodeId      `json:"deletedChild"`
	DeletedDescendants []NodeId    `json:"deletedDescendants"`
}

type ChildReplaced struct {
	EventBase
	NewChild            Chunk       `json:"newChild"`
	Parent              NodeId      `json:"parent"`
	Containment         MetaPointer `json:"containment"`
	Index               int         `json:"index"`
	ReplacedChild       NodeId      `json:"replacedChild"`
	ReplacedDescendants []NodeId    `json:"replacedDescendants"`
}

type ChildMovedFromOtherContainment struct {
	EventBase
	NewParent      NodeId      `json:"newParent"`
	NewContainment MetaPointer `json:"newContainment"`
	NewIndex       int         `json:"newIndex"`
	MovedChild     NodeId      `json:"movedChild"`
	OldParent      NodeId      `json:"oldParent"`
	OldContainment MetaPointer `json:"oldContainment"`
	OldIndex       int         `json:"oldIndex"`
}

type ChildMovedFromOtherContainmentInSameParent struct {
	EventBase
	Parent         NodeId      `json:"parent"`
	NewContainment MetaPointer `json:"newContainment"`
	NewIndex       int         `json:"newIndex"`
	MovedChild     NodeId      `json:"movedChild"`
	OldContainment MetaPointer `json:"oldContainment"`
	OldIndex       int         `json:"oldIndex"`
}

type ChildMovedInSameContainment struct {
	EventBase
	Parent      NodeId      `json:"parent"`
	Containment MetaPointer `json:"containment"`
	NewIndex    int         `json:"newIndex"`
	MovedChild  NodeId      `json:"movedChild"`
	OldIndex    int         `json:"oldIndex"`
}

type ChildMovedAndReplacedFromOtherContainment struct {
	EventBase
	NewParent           NodeId      `json:"newParent"`
	NewContainment      MetaPointer `json:"newContainment"`
	NewIndex            int         `json:"newIndex"`
	MovedChild          NodeId      `json:"movedChild"`
	OldParent           NodeId      `json:"oldParent"`
	OldContainment      MetaPointer `json:"oldContainment"`
	OldIndex            int         `json:"oldIndex"`
	ReplacedChild       NodeId      `json:"replacedChild"`
	ReplacedDescendants []NodeId    `json:"replacedDescendants"`
}

type AnnotationAdded struct {
	EventBase
	Parent        NodeId `json:"parent"`
	NewAnnotation Chunk  `json:"newAnnotation"`
	Index         int    `json:"index"`
}

type AnnotationDeleted struct {
	EventBase
	Parent             NodeId   `json:"parent"`
	Index              int      `json:"index"`
	DeletedAnnotation  NodeId   `json:"deletedAnnotation"`
	DeletedDescendants []NodeId `json:"deletedDescendants"`
}

type AnnotationMovedFromOtherParent struct {
	EventBase
	NewParent       NodeId `json:"newParent"`
	NewIndex        int    `json:"newIndex"`
	MovedAnnotation NodeId `json:"movedAnnotation"`
	OldParent       NodeId `json:"oldParent"`
	OldIndex        int    `json:"oldIndex"`
}

type AnnotationMovedInSameParent struct {
	EventBase
	Parent          NodeId `json:"parent"`
	NewIndex        int    `json:"newIndex"`
	MovedAnnotation NodeId `json:"movedAnnotation"`
	OldIndex        int    `json:"oldIndex"`
}

type ReferenceAdded struct {
	EventBase
	Parent    NodeId      `json:"parent"`
	Reference MetaPointer `json:"reference"`
	Index     int         `json:"index"`
	NewTarget Target      `json:"newTarget"`
}

type ReferenceDeleted struct {
	EventBase
	Parent        NodeId      `json:"parent"`
	Reference     MetaPointer `json:"reference"`
	Index         int         `json:"index"`
	DeletedTarget Target      `json:"deletedTarget"`
}

type ReferenceChanged struct {
	EventBase
	Parent    NodeId      `json:"parent"`
	Reference MetaPointer `json:"reference"`
	Index     int         `json:"index"`
	NewTarget Target      `json:"newTarget"`
	OldTarget Target      `json:"oldTarget"`
}

func (*PartitionAdded) Kind() Kind                             { return "PartitionAdded" }
func (*PartitionDeleted) Kind() Kind                           { return "PartitionDeleted" }
func (*PropertyAdded) Kind() Kind                              { return "PropertyAdded" }
func (*PropertyDeleted) Kind() Kind                            { return "PropertyDeleted" }
func (*PropertyChanged) Kind() Kind                            { return "PropertyChanged" }
func (*ChildAdded) Kind() Kind                                 { return "ChildAdded" }
func (*ChildDeleted) Kind() Kind                               { return "ChildDeleted" }
func (*ChildReplaced) Kind() Kind                              { return "ChildReplaced" }
func (*ChildMovedFromOtherContainment) Kind() Kind             { return "ChildMovedFromOtherContainment" }
func (*ChildMovedFromOtherContainmentInSameParent) Kind() Kind { return "ChildMovedFromOtherContainmentInSameParent" }
func (*ChildMovedInSameContainment) Kind() Kind                { return "ChildMovedInSameContainment" }
func (*ChildMovedAndReplacedFromOtherContainment) Kind() Kind  { return "ChildMovedAndReplacedFromOtherContainment" }
func (*AnnotationAdded) Kind() Kind                            { return "AnnotationAdded" }
func (*AnnotationDeleted) Kind() Kind                          { return "AnnotationDeleted" }
func (*AnnotationMovedFromOtherParent) Kind() Kind             { return "AnnotationMovedFromOtherParent" }
func (*AnnotationMovedInSameParent) Kind() Kind                { return "AnnotationMovedInSameParent" }
func (*ReferenceAdded) Kind() Kind                             { return "ReferenceAdded" }
func (*ReferenceDeleted) Kind() Kind                           { return "ReferenceDeleted" }
func (*ReferenceChanged) Kind() Kind                           { return "ReferenceChanged" }

func (e *PartitionAdded) WithSequence(n uint64) Event                             { return resequence(e, n) }
func (e *PartitionDeleted) WithSequence(n uint64) Event                           { return resequence(e, n) }
func (e *PropertyAdded) WithSequence(n uint64) Event                              { return resequence(e, n) }
func (e *PropertyDeleted) WithSequence(n uint64) Event                            { return resequence(e, n) }
func (e *PropertyChanged) WithSequence(n uint64) Event                            { return resequence(e, n) }
func (e *ChildAdded) WithSequence(n uint64) Event                                 { return resequence(e, n) }
func (e *ChildDeleted) WithSequence(n uint64) Event                               { return resequence(e, n) }
func (e *ChildReplaced) WithSequence(n uint64) Event                              { return resequence(e, n) }
func (e *ChildMovedFromOtherContainment) WithSequence(n uint64) Event             { return resequence(e, n) }
func (e *ChildMovedFromOtherContainmentInSameParent) WithSequence(n uint64) Event { return resequence(e, n) }
func (e *ChildMovedInSameContainment) WithSequence(n uint64) Event                { return resequence(e, n) }
func (e *ChildMovedAndReplacedFromOtherContainment) WithSequence(n uint64) Event  { return resequence(e, n) }
func (e *AnnotationAdded) WithSequence(n uint64) Event                            { return resequence(e, n) }
func (e *AnnotationDeleted) WithSequence(n uint64) Event                          { return resequence(e, n) }
func (e *AnnotationMovedFromOtherParent) WithSequence(n uint64) Event             { return resequence(e, n) }
func (e *AnnotationMovedInSameParent) WithSequence(n uint64) Event                { return resequence(e, n) }
func (e *ReferenceAdded) WithSequence(n uint64) Event                             { return resequence(e, n) }
func (e *ReferenceDeleted) WithSequence(n uint64) Event                           { return resequence(e, n) }
func (e *ReferenceChanged) WithSequence(n uint64) Event                           { return resequence(e, n) }
