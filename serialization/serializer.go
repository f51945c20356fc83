package serialization

import (
	"github.com/drpcorg/lwdelta/model"
)

// Serialize renders root and its whole subtree, annotations included.
func Serialize(root *model.Node, conv model.ValueConverter) (Chunk, error) {
	chunk := Chunk{SerializationFormatVersion: FormatVersion}
	langs := make(map[UsedLanguage]struct{})
	for _, n := range root.Descendants(true, true) {
		sn, err := serializeNode(n, conv)
		if err != nil {
			return Chunk{}, err
		}
		lang := UsedLanguage{Key: sn.Classifier.Language, Version: sn.Classifier.Version}
		if _, ok := langs[lang]; !ok {
			langs[lang] = struct{}{}
			chunk.Languages = append(chunk.Languages, lang)
		}
		chunk.Nodes = append(chunk.Nodes, sn)
	}
	return chunk, nil
}

func serializeNode(n *model.Node, conv model.ValueConverter) (SerializedNode, error) {
	sn := SerializedNode{
		Id:          string(n.Id()),
		Classifier:  n.Classifier().Meta,
		Annotations: []string{},
	}
	if p := n.Parent(); p != nil {
		sn.Parent = strptr(string(p.Id()))
	}
	for _, f := range n.Classifier().Features {
		switch f.Kind {
		case model.PropertyKind:
			v, _ := n.Property(f)
			raw, err := conv.ToWire(f, v)
			if err != nil {
				return sn, err
			}
			sn.Properties = append(sn.Properties, SerializedProperty{Property: f.Meta, Value: raw})
		case model.ContainmentKind:
			children := []string{}
			for _, c := range n.Children(f) {
				children = append(children, string(c.Id()))
			}
			sn.Containments = append(sn.Containments, SerializedContainment{Containment: f.Meta, Children: children})
		case model.ReferenceKind:
			targets := []SerializedReferenceTarget{}
			for _, t := range n.References(f) {
				targets = append(targets, TargetToWire(t))
			}
			sn.References = append(sn.References, SerializedReference{Reference: f.Meta, Targets: targets})
		}
	}
	for _, a := range n.Annotations() {
		sn.Annotations = append(sn.Annotations, string(a.Id()))
	}
	return sn, nil
}
