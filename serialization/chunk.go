// Package serialization converts subtrees to and from the chunk format
// carried inside delta messages.
package serialization

import (
	"errors"

	"github.com/drpcorg/lwdelta/model"
)

const FormatVersion = "2023.1"

var (
	ErrUnresolvableNode = errors.New("lwdelta: chunk refers to a node it does not contain")
	ErrMalformedChunk   = errors.New("lwdelta: malformed chunk")
)

type Chunk struct {
	SerializationFormatVersion string           `json:"serializationFormatVersion"`
	Languages                  []UsedLanguage   `json:"languages"`
	Nodes                      []SerializedNode `json:"nodes"`
}

type UsedLanguage struct {
	Key     string `json:"key"`
	Version string `json:"version"`
}

type SerializedNode struct {
	Id           string                  `json:"id"`
	Classifier   model.MetaPointer       `json:"classifier"`
	Properties   []SerializedProperty    `json:"properties"`
	Containments []SerializedContainment `json:"containments"`
	References   []SerializedReference   `json:"references"`
	Annotations  []string                `json:"annotations"`
	Parent       *string                 `json:"parent"`
}

type SerializedProperty struct {
	Property model.MetaPointer `json:"property"`
	Value    *string           `json:"value"`
}

type SerializedContainment struct {
	Containment model.MetaPointer `json:"containment"`
	Children    []string          `json:"children"`
}

type SerializedReference struct {
	Reference model.MetaPointer           `json:"reference"`
	Targets   []SerializedReferenceTarget `json:"targets"`
}

type SerializedReferenceTarget struct {
	ResolveInfo *string `json:"resolveInfo"`
	Reference   *string `json:"reference"`
}

// Ids lists the ids of all nodes in the chunk.
func (c *Chunk) Ids() []model.NodeId {
	ids := make([]model.NodeId, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, model.NodeId(n.Id))
	}
	return ids
}

func strptr(s string) *string {
	return &s
}

// TargetToWire renders a reference target; empty parts become nulls.
func TargetToWire(t model.ReferenceTarget) SerializedReferenceTarget {
	var out SerializedReferenceTarget
	if t.ResolveInfo != "" {
		out.ResolveInfo = strptr(t.ResolveInfo)
	}
	if t.TargetId != "" {
		out.Reference = strptr(string(t.TargetId))
	}
	return out
}

func TargetFromWire(w SerializedReferenceTarget) model.ReferenceTarget {
	var t model.ReferenceTarget
	if w.ResolveInfo != nil {
		t.ResolveInfo = *w.ResolveInfo
	}
	if w.Reference != nil {
		t.TargetId = model.NodeId(*w.Reference)
	}
	return t
}
