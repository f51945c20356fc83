// Package nodemap provides the forest-wide id → node registry used to
// resolve node ids arriving over the wire into live nodes.
package nodemap

import (
	"errors"

	"github.com/drpcorg/lwdelta/model"
	pkgerrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

var ErrDuplicateNode = errors.New("lwdelta: node id already registered to another node")

// SharedNodeMap is safe for concurrent use. Lookups of unknown ids are not
// errors; callers decide what an absent node means.
type SharedNodeMap struct {
	nodes *xsync.MapOf[model.NodeId, *model.Node]
}

func New() *SharedNodeMap {
	return &SharedNodeMap{nodes: xsync.NewMapOf[model.NodeId, *model.Node]()}
}

// Register adds a node. Registering the same node twice is a no-op.
func (m *SharedNodeMap) Register(node *model.Node) error {
	actual, loaded := m.nodes.LoadOrStore(node.Id(), node)
	if loaded && actual != node {
		return pkgerrors.Wrapf(ErrDuplicateNode, "%s", node.Id())
	}
	return nil
}

// RegisterSubtree registers root and all its descendants including
// annotations. On conflict nothing stays registered by this call.
func (m *SharedNodeMap) RegisterSubtree(root *model.Node) error {
	var done []*model.Node
	for _, n := range root.Descendants(true, true) {
		_, existed := m.nodes.Load(n.Id())
		if err := m.Register(n); err != nil {
			for _, d := range done {
				m.nodes.Delete(d.Id())
			}
			return err
		}
		if !existed {
			done = append(done, n)
		}
	}
	return nil
}

func (m *SharedNodeMap) TryGet(id model.NodeId) (*model.Node, bool) {
	return m.nodes.Load(id)
}

// TryGetPartition resolves a node id to the partition root that node lives
// in, if both are known.
func (m *SharedNodeMap) TryGetPartition(id model.NodeId) (*model.Node, bool) {
	node, ok := m.nodes.Load(id)
	if !ok {
		return nil, false
	}
	p := node.Partition()
	if p == nil {
		return nil, false
	}
	if registered, ok := m.nodes.Load(p.Id()); !ok || registered != p {
		return nil, false
	}
	return p, true
}

// Remove drops an id. A different node registered under the same id stays.
func (m *SharedNodeMap) Remove(node *model.Node) {
	m.nodes.Compute(node.Id(), func(old *model.Node, loaded bool) (*model.Node, bool) {
		if !loaded || old != node {
			return old, !loaded
		}
		return nil, true
	})
}

func (m *SharedNodeMap) RemoveSubtree(root *model.Node) {
	for _, n := range root.Descendants(true, true) {
		m.Remove(n)
	}
}

func (m *SharedNodeMap) Len() int {
	return m.nodes.Size()
}

// Ids lists the registered ids in no particular order.
func (m *SharedNodeMap) Ids() []model.NodeId {
	ids := make([]model.NodeId, 0, m.nodes.Size())
	m.nodes.Range(func(id model.NodeId, _ *model.Node) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}
