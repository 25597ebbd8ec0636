package reconcile

import (
	"github.com/gnutt/cloudflare-aaaa-sync/internal/provider"
)

type Plan struct {
	Create []provider.Record
	Update []provider.Record
	Delete []provider.Record
}

func (p Plan) IsEmpty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

type Results struct {
	Address  string
	Matched  int
	DryRun   bool
	Created  []provider.Record
	Updated  []provider.Record
	Deleted  []provider.Record
	Failures []OperationResult
}

// Writes counts the provider writes that succeeded, or would have in a dry run.
func (r Results) Writes() int {
	return len(r.Created) + len(r.Updated) + len(r.Deleted)
}

type OperationResult struct {
	Record provider.Record
	Op     string
	Error  string
	Err    error
}
