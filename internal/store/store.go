// Package store persists which ad identities have been seen per search.
//
// The store is partitioned by search name. Partitions are independent:
// runners for different searches may read and record concurrently, and a
// runner only ever gets a scoped Partition view of its own search. Two
// backends exist, a versioned JSON file (the default) and Redis.
package store

import (
	"context"
	"fmt"

	"github.com/jonasehrlich/ek-scraper/internal/model"
)

// SchemaVersion is the current on-disk schema. Version 1 stored a single
// flat id map and is not readable anymore; loading it must fail loudly
// instead of silently reinterpreting the identities.
const SchemaVersion = 2

// VersionError reports a persisted store written by an incompatible
// schema version.
type VersionError struct {
	Source string
	Got    int
	Want   int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("data store %s has schema version %d, this build reads version %d; delete the store or migrate it", e.Source, e.Got, e.Want)
}

// Store is a durable mapping from search name to the set of previously
// observed ad identities.
//
// Implementations must allow concurrent calls for different searches. An
// identity, once recorded, is only ever removed through Prune.
type Store interface {
	// Seen reports, for each id, whether it is already recorded for the
	// search.
	Seen(ctx context.Context, search string, ids []string) (map[string]bool, error)
	// Record marks the given ads as seen for the search. Re-recording a
	// known id refreshes its last-seen timestamp and loses nothing.
	Record(ctx context.Context, search string, ads []model.AdRecord) error
	// Prune drops every id of the search that is not in observed and
	// returns the number of dropped ids. This is the explicit maintenance
	// operation; nothing else ever shrinks a partition.
	Prune(ctx context.Context, search string, observed []string) (int, error)
	// Close releases the backend and, for persistent file stores, writes
	// the accumulated state atomically.
	Close(ctx context.Context) error
}

// Partition is the scoped view of a single search's state handed to its
// runner. It prevents one search from touching another's partition.
type Partition struct {
	store  Store
	search string
}

// NewPartition scopes st to one search name.
func NewPartition(st Store, search string) *Partition {
	return &Partition{store: st, search: search}
}

// Seen reports which of the ids are already recorded.
func (p *Partition) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	return p.store.Seen(ctx, p.search, ids)
}

// Record marks the ads as seen.
func (p *Partition) Record(ctx context.Context, ads []model.AdRecord) error {
	return p.store.Record(ctx, p.search, ads)
}
