package reconciliation

import (
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

// Engine answers linking, consumption and validation questions against the
// current state of the document store. It holds no state of its own, so a
// fresh Engine can be built per transaction.
type Engine struct {
	docs   *repository.DocumentRepo
	policy Policy
}

func NewEngine(docs *repository.DocumentRepo, policy Policy) *Engine {
	return &Engine{docs: docs, policy: policy}
}
