package collab

import (
	"github.com/ashureev/collabsync/internal/replica"
	"github.com/ashureev/collabsync/internal/transport"
)

// resources owns the replica/transport pair. The transport never outlives
// the replica: release disposes it first.
type resources struct {
	doc         *replica.Doc
	tr          transport.Transport
	unsubscribe func()
}

func (r *resources) active() bool {
	return r.doc != nil
}

// release unsubscribes the bridge and destroys the transport then the replica.
func (r *resources) release() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	if r.tr != nil {
		r.tr.Destroy()
	}
	if r.doc != nil {
		r.doc.Destroy()
	}
	*r = resources{}
}
