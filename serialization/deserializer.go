package serialization

import (
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/pkg/errors"
)

// Deserializer builds live nodes from chunks. Every node it builds is
// registered in Nodes; Forget undoes that for a subtree that ends up unused.
type Deserializer struct {
	Keyed     *model.SharedKeyedMap
	Nodes     *nodemap.SharedNodeMap
	Converter model.ValueConverter
}

// Deserialize returns the roots of the chunk: the nodes no other node in
// the chunk contains or annotates. Chunk node order is preserved.
func (d *Deserializer) Deserialize(chunk *Chunk) ([]*model.Node, error) {
	if chunk == nil {
		return nil, errors.Wrap(ErrMalformedChunk, "nil chunk")
	}
	built := make(map[string]*model.Node, len(chunk.Nodes))
	order := make([]*model.Node, 0, len(chunk.Nodes))
	for i := range chunk.Nodes {
		sn := &chunk.Nodes[i]
		if sn.Id == "" {
			return nil, errors.Wrap(ErrMalformedChunk, "node without id")
		}
		if _, dup := built[sn.Id]; dup {
			return nil, errors.Wrapf(nodemap.ErrDuplicateNode, "%s twice in chunk", sn.Id)
		}
		c, err := d.Keyed.Classifier(sn.Classifier)
		if err != nil {
			return nil, err
		}
		n := model.NewNode(model.NodeId(sn.Id), c)
		built[sn.Id] = n
		order = append(order, n)
	}

	owned := make(map[string]bool, len(chunk.Nodes))
	take := func(id string) (*model.Node, error) {
		n, ok := built[id]
		if !ok {
			return nil, errors.Wrapf(ErrUnresolvableNode, "%s", id)
		}
		if owned[id] {
			return nil, errors.Wrapf(ErrMalformedChunk, "%s has two parents", id)
		}
		owned[id] = true
		return n, nil
	}

	for i := range chunk.Nodes {
		sn := &chunk.Nodes[i]
		n := built[sn.Id]
		for _, p := range sn.Properties {
			f, err := d.Keyed.Property(p.Property)
			if err != nil {
				return nil, err
			}
			v, err := d.Converter.FromWire(f, p.Value)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			if err := n.SetProperty(f, v); err != nil {
				return nil, err
			}
		}
		for _, sc := range sn.Containments {
			f, err := d.Keyed.Containment(sc.Containment)
			if err != nil {
				return nil, err
			}
			for _, id := range sc.Children {
				child, err := take(id)
				if err != nil {
					return nil, err
				}
				if err := n.InsertChild(f, len(n.Children(f)), child); err != nil {
					return nil, err
				}
			}
		}
		for _, id := range sn.Annotations {
			ann, err := take(id)
			if err != nil {
				return nil, err
			}
			if err := n.InsertAnnotation(len(n.Annotations()), ann); err != nil {
				return nil, err
			}
		}
		for _, sr := range sn.References {
			f, err := d.Keyed.Reference(sr.Reference)
			if err != nil {
				return nil, err
			}
			for _, w := range sr.Targets {
				t := TargetFromWire(w)
				t.Target = d.resolve(built, t.TargetId)
				if err := n.InsertReference(f, len(n.References(f)), t); err != nil {
					return nil, err
				}
			}
		}
	}

	var roots []*model.Node
	for _, n := range order {
		if !owned[string(n.Id())] {
			roots = append(roots, n)
		}
	}
	for i, r := range roots {
		if err := d.Nodes.RegisterSubtree(r); err != nil {
			for _, done := range roots[:i] {
				d.Nodes.RemoveSubtree(done)
			}
			return nil, err
		}
	}
	return roots, nil
}

// DeserializeSingle expects exactly one root.
func (d *Deserializer) DeserializeSingle(chunk *Chunk) (*model.Node, error) {
	roots, err := d.Deserialize(chunk)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		for _, r := range roots {
			d.Nodes.RemoveSubtree(r)
		}
		return nil, errors.Wrapf(ErrMalformedChunk, "%d roots, want one", len(roots))
	}
	return roots[0], nil
}

// Forget unregisters a deserialized subtree that was not attached.
func (d *Deserializer) Forget(root *model.Node) {
	d.Nodes.RemoveSubtree(root)
}

func (d *Deserializer) resolve(built map[string]*model.Node, id model.NodeId) *model.Node {
	if id == "" {
		return nil
	}
	if n, ok := built[string(id)]; ok {
		return n
	}
	if n, ok := d.Nodes.TryGet(id); ok {
		return n
	}
	return nil
}
