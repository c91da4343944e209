package core

import "github.com/douit-app/douit/internal/docstore"

// Engine bundles the core components over one store.
type Engine struct {
	Fragments *Fragments
	Sets      *TermSets
	Guard     *Guard
	Ledger    *Ledger
}

// NewEngine wires every component to st with the same options.
func NewEngine(st docstore.Store, opts ...Option) *Engine {
	fragments := NewFragments(st, opts...)
	sets := NewTermSets(st, opts...)
	return &Engine{
		Fragments: fragments,
		Sets:      sets,
		Guard:     fragments.guard,
		Ledger:    NewLedger(st, sets, fragments, opts...),
	}
}
