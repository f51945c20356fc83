// Package testutils holds fixtures shared by tests of several packages.
package testutils

import (
	"github.com/drpcorg/lwdelta/model"
)

func mp(key string) model.MetaPointer {
	return model.MetaPointer{Language: "shapes", Version: "1", Key: key}
}

// Shapes is a small language: Geometry partitions holding Leaf nodes,
// annotated with Notes.
type Shapes struct {
	Language *model.Language

	Geometry     *model.Classifier
	GeometryName *model.Feature
	Parts        *model.Feature
	Extra        *model.Feature
	Main         *model.Feature

	Leaf     *model.Classifier
	LeafName *model.Feature
	Size     *model.Feature
	Visible  *model.Feature
	Kids     *model.Feature
	Peer     *model.Feature
	Best     *model.Feature

	Note     *model.Classifier
	NoteText *model.Feature
}

func NewShapes() *Shapes {
	s := &Shapes{
		GeometryName: &model.Feature{Meta: mp("Geometry-name"), Name: "name", Kind: model.PropertyKind, Optional: true, DataType: model.String},
		Parts:        &model.Feature{Meta: mp("Geometry-parts"), Name: "parts", Kind: model.ContainmentKind, Multiple: true, Optional: true},
		Extra:        &model.Feature{Meta: mp("Geometry-extra"), Name: "extra", Kind: model.ContainmentKind, Multiple: true, Optional: true},
		Main:         &model.Feature{Meta: mp("Geometry-main"), Name: "main", Kind: model.ContainmentKind, Optional: true},

		LeafName: &model.Feature{Meta: mp("Leaf-name"), Name: "name", Kind: model.PropertyKind, DataType: model.String},
		Size:     &model.Feature{Meta: mp("Leaf-size"), Name: "size", Kind: model.PropertyKind, Optional: true, DataType: model.Integer},
		Visible:  &model.Feature{Meta: mp("Leaf-visible"), Name: "visible", Kind: model.PropertyKind, Optional: true, DataType: model.Boolean},
		Kids:     &model.Feature{Meta: mp("Leaf-kids"), Name: "kids", Kind: model.ContainmentKind, Multiple: true, Optional: true},
		Peer:     &model.Feature{Meta: mp("Leaf-peer"), Name: "peer", Kind: model.ReferenceKind, Multiple: true, Optional: true},
		Best:     &model.Feature{Meta: mp("Leaf-best"), Name: "best", Kind: model.ReferenceKind, Optional: true},

		NoteText: &model.Feature{Meta: mp("Note-text"), Name: "text", Kind: model.PropertyKind, Optional: true, DataType: model.String},
	}
	s.Geometry = &model.Classifier{Meta: mp("Geometry"), Name: "Geometry", Partition: true,
		Features: []*model.Feature{s.GeometryName, s.Parts, s.Extra, s.Main}}
	s.Leaf = &model.Classifier{Meta: mp("Leaf"), Name: "Leaf",
		Features: []*model.Feature{s.LeafName, s.Size, s.Visible, s.Kids, s.Peer, s.Best}}
	s.Note = &model.Classifier{Meta: mp("Note"), Name: "Note", Annotation: true,
		Features: []*model.Feature{s.NoteText}}
	s.Language = &model.Language{Key: "shapes", Version: "1", Name: "Shapes",
		Classifiers: []*model.Classifier{s.Geometry, s.Leaf, s.Note}}
	return s
}

func (s *Shapes) KeyedMap() *model.SharedKeyedMap {
	km, err := model.NewSharedKeyedMap(s.Language)
	if err != nil {
		panic(err)
	}
	return km
}

func (s *Shapes) NewGeometry(id string) *model.Node {
	return model.NewNode(model.NodeId(id), s.Geometry)
}

// NewLeaf makes a detached Leaf with its name set.
func (s *Shapes) NewLeaf(id, name string) *model.Node {
	n := model.NewNode(model.NodeId(id), s.Leaf)
	_ = n.SetProperty(s.LeafName, name)
	return n
}

func (s *Shapes) NewNote(id, text string) *model.Node {
	n := model.NewNode(model.NodeId(id), s.Note)
	_ = n.SetProperty(s.NoteText, text)
	return n
}

// Recorder collects notifications.
type Recorder struct {
	Got []model.Notification
}

func (r *Recorder) Receive(n model.Notification) {
	r.Got = append(r.Got, n)
}

func (r *Recorder) Last() model.Notification {
	if len(r.Got) == 0 {
		return nil
	}
	return r.Got[len(r.Got)-1]
}
