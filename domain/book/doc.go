// Package book implements the matching core: the shared order arena
// with free-list reuse and deferred reclamation, the per-side price
// ladders with intrusive slot-index chains, and the insert/amend/
// quote/delete algorithms operating on them.
//
// The package is strictly single-threaded. One operation mutates the
// arena, the ladders and the lookup indices to completion before the
// next is considered; indications are delivered inline through the
// Client interface.
package book
