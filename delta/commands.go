package delta

type AddPartition struct {
	CommandBase
	NewPartition Chunk `json:"newPartition"`
}

type DeletePartition struct {
	CommandBase
	DeletedPartition NodeId `json:"deletedPartition"`
}

type AddProperty struct {
	CommandBase
	Node     NodeId      `json:"node"`
	Property MetaPointer `json:"property"`
	NewValue *string     `json:"newValue"`
}

type DeleteProperty struct {
	CommandBase
	Node     NodeId      `json:"node"`
	Property MetaPointer `json:"property"`
}

type ChangeProperty struct {
	CommandBase
	Node     NodeId      `json:"node"`
	Property MetaPointer `json:"property"`
	NewValue *string     `json:"newValue"`
}

type AddChild struct {
	CommandBase
	Parent      NodeId      `json:"parent"`
	NewChild    Chunk       `json:"newChild"`
	Containment MetaPointer `json:"containment"`
	Index       int         `json:"index"`
}

type DeleteChild struct {
	CommandBase
	Parent       NodeId      `json:"parent"`
	Containment  MetaPointer `json:"containment"`
	Index        int         `json:"index"`
	DeletedChild NodeId      `json:"deletedChild"`
}

type ReplaceChild struct {
	CommandBase
	NewChild      Chunk       `json:"newChild"`
	Parent        NodeId      `json:"parent"`
	Containment   MetaPointer `json:"containment"`
	Index         int         `json:"index"`
	ReplacedChild NodeId      `json:"replacedChild"`
}

type MoveChildFromOtherContainment struct {
	CommandBase
	NewParent      NodeId      `json:"newParent"`
	NewContainment MetaPointer `json:"newContainment"`
	NewIndex       int         `json:"newIndex"`
	MovedChild     NodeId      `json:"movedChild"`
}

type MoveChildFromOtherContainmentInSameParent struct {
	CommandBase
	NewContainment MetaPointer `json:"newContainment"`
	NewIndex       int         `json:"newIndex"`
	MovedChild     NodeId      `json:"movedChild"`
	Parent         NodeId      `json:"parent"`
}

type MoveChildInSameContainment struct {
	CommandBase
	NewIndex   int    `json:"newIndex"`
	MovedChild NodeId `json:"movedChild"`
}

type MoveAndReplaceChildFromOtherContainment struct {
	CommandBase
	NewParent      NodeId      `json:"newParent"`
	NewContainment MetaPointer `json:"newContainment"`
	NewIndex       int         `json:"newIndex"`
	ReplacedChild  NodeId      `json:"replacedChild"`
	MovedChild     NodeId      `json:"movedChild"`
}

type AddAnnotation struct {
	CommandBase
	Parent        NodeId `json:"parent"`
	NewAnnotation Chunk  `json:"newAnnotation"`
	Index         int    `json:"index"`
}

type DeleteAnnotation struct {
	CommandBase
	Parent            NodeId `json:"parent"`
	Index             int    `json:"index"`
	DeletedAnnotation NodeId `json:"deletedAnnotation"`
}

type MoveAnnotationFromOtherParent struct {
	CommandBase
	NewParent       NodeId `json:"newParent"`
	NewIndex        int    `json:"newIndex"`
	MovedAnnotation NodeId `json:"movedAnnotation"`
}

type MoveAnnotationInSameParent struct {
	CommandBase
	NewIndex        int    `json:"newIndex"`
	MovedAnnotation NodeId `json:"movedAnnotation"`
}

type AddReference struct {
	CommandBase
	Parent    NodeId      `json:"parent"`
	Reference MetaPointer `json:"reference"`
	Index     int         `json:"index"`
	NewTarget Target      `json:"newTarget"`
}

type DeleteReference struct {
	CommandBase
	Parent    NodeId      `json:"parent"`
	Reference MetaPointer `json:"reference"`
	Index     int         `json:"index"`
}

type ChangeReference struct {
	CommandBase
	Parent    NodeId      `json:"parent"`
	Reference MetaPointer `json:"reference"`
	Index     int         `json:"index"`
	NewTarget Target      `json:"newTarget"`
}

func (*AddPartition) Kind() Kind                              { return "AddPartition" }
func (*DeletePartition) Kind() Kind                           { return "DeletePartition" }
func (*AddProperty) Kind() Kind                               { return "AddProperty" }
func (*DeleteProperty) Kind() Kind                            { return "DeleteProperty" }
func (*ChangeProperty) Kind() Kind                            { return "ChangeProperty" }
func (*AddChild) Kind() Kind                                  { return "AddChild" }
func (*DeleteChild) Kind() Kind                               { return "DeleteChild" }
func (*ReplaceChild) Kind() Kind                              { return "ReplaceChild" }
func (*MoveChildFromOtherContainment) Kind() Kind             { return "MoveChildFromOtherContainment" }
func (*MoveChildFromOtherContainmentInSameParent) Kind() Kind { return "MoveChildFromOtherContainmentInSameParent" }
func (*MoveChildInSameContainment) Kind() Kind                { return "MoveChildInSameContainment" }
func (*MoveAndReplaceChildFromOtherContainment) Kind() Kind   { return "MoveAndReplaceChildFromOtherContainment" }
func (*AddAnnotation) Kind() Kind                             { return "AddAnnotation" }
func (*DeleteAnnotation) Kind() Kind                          { return "DeleteAnnotation" }
func (*MoveAnnotationFromOtherParent) Kind() Kind             { return "MoveAnnotationFromOtherParent" }
func (*MoveAnnotationInSameParent) Kind() Kind                { return "MoveAnnotationInSameParent" }
func (*AddReference) Kind() Kind                              { return "AddReference" }
func (*DeleteReference) Kind() Kind                           { return "DeleteReference" }
func (*ChangeReference) Kind() Kind                           { return "ChangeReference" }

// IsForestCommand tells commands that act on the forest rather than inside
// one partition.
func IsForestCommand(c Command) bool {
	switch c.(type) {
	case *AddPartition, *DeletePartition:
		return true
	}
	return false
}
