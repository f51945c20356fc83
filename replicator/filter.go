// Package replicator applies remote changes to a forest without letting
// them come back out as local edits, and keeps one pipeline per partition
// in step with the partitions the forest holds.
package replicator

import (
	"github.com/drpcorg/lwdelta/model"
	"github.com/puzpuzpuz/xsync/v3"
)

// IdFilter remembers which notification ids belong to a remote change that
// is being applied right now, and which identity that change had.
type IdFilter struct {
	ids *xsync.MapOf[model.NotificationId, model.Base]
}

func NewIdFilter() *IdFilter {
	return &IdFilter{ids: xsync.NewMapOf[model.NotificationId, model.Base]()}
}

// Register marks synthetic as standing for original until release is
// called. Release is idempotent.
func (f *IdFilter) Register(synthetic model.NotificationId, original model.Base) (release func()) {
	f.ids.Store(synthetic, original)
	done := false
	return func() {
		if !done {
			done = true
			f.ids.Delete(synthetic)
		}
	}
}

// Suppress runs fn with synthetic registered. The registration is dropped
// on every way out of fn, panics included.
func (f *IdFilter) Suppress(synthetic model.NotificationId, original model.Base, fn func() error) error {
	release := f.Register(synthetic, original)
	defer release()
	return fn()
}

func (f *IdFilter) Lookup(id model.NotificationId) (model.Base, bool) {
	return f.ids.Load(id)
}

func (f *IdFilter) Len() int {
	return f.ids.Size()
}

// IdReplacingHandler hands filtered notifications on with the identity of
// the remote change they were caused by. Others pass through untouched.
type IdReplacingHandler struct {
	Filter *IdFilter
	Next   model.NotificationHandler
}

func (h *IdReplacingHandler) Receive(n model.Notification) {
	if original, ok := h.Filter.Lookup(n.NotificationId()); ok {
		n = n.Rebased(original)
	}
	h.Next.Receive(n)
}

// router sends filtered notifications to replicated and everything else
// to local.
type router struct {
	filter     *IdFilter
	local      model.NotificationHandler
	replicated *IdReplacingHandler
}

func newRouter(filter *IdFilter, local, replicated model.NotificationHandler) *router {
	return &router{
		filter:     filter,
		local:      local,
		replicated: &IdReplacingHandler{Filter: filter, Next: replicated},
	}
}

func (r *router) Receive(n model.Notification) {
	if _, ok := r.filter.Lookup(n.NotificationId()); ok {
		SuppressedCount.WithLabelValues(kindOf(n)).Inc()
		r.replicated.Receive(n)
		return
	}
	r.local.Receive(n)
}
