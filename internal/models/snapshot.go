package models

import (
	"fmt"
	"strings"
	"time"
)

// SnapshotKind identifies the shape of a stored snapshot document.
type SnapshotKind string

const (
	SnapshotCollections SnapshotKind = "collections"
	SnapshotItems       SnapshotKind = "items"
)

// CollectionsSnapshotID is the id of the single collection overview document.
const CollectionsSnapshotID = "collections"

const itemsSnapshotPrefix = "items:"

// ItemsSnapshotID returns the id of the items document for a collection.
func ItemsSnapshotID(collectionID string) string {
	return itemsSnapshotPrefix + collectionID
}

// CollectionFromSnapshotID extracts the collection id of an items document id.
func CollectionFromSnapshotID(id string) (string, bool) {
	if !strings.HasPrefix(id, itemsSnapshotPrefix) {
		return "", false
	}
	return strings.TrimPrefix(id, itemsSnapshotPrefix), true
}

// SnapshotDocument is a stored, fully rebuildable projection.
type SnapshotDocument struct {
	ID           string       `db:"id"`
	Kind         SnapshotKind `db:"kind"`
	CollectionID *string      `db:"collection_id"`
	Body         string       `db:"body"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// CollectionEntry is one collection in the overview document.
type CollectionEntry struct {
	CollectionID       string `json:"collection_id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Order              int    `json:"order"`
	IsActive           bool   `json:"is_active"`
	ItemCount          int    `json:"item_count"`
	TotalSubmissions   int64  `json:"total_submissions"`
	UniqueContributors int64  `json:"unique_contributors"`
}

// ItemEntry is one item in a collection's items document.
type ItemEntry struct {
	ItemID             string `json:"item_id"`
	Text               string `json:"text"`
	Type               string `json:"type"`
	Order              int    `json:"order"`
	IsActive           bool   `json:"is_active"`
	TotalSubmissions   int64  `json:"total_submissions"`
	UniqueContributors int64  `json:"unique_contributors"`
}

// CollectionsSnapshot is the body of the overview document. UpdatedAt is the
// latest aggregate change among its entries, nil when nothing was ever counted.
type CollectionsSnapshot struct {
	Collections map[string]CollectionEntry `json:"collections"`
	UpdatedAt   *time.Time                 `json:"updated_at"`
}

// ItemsSnapshot is the body of one collection's items document.
type ItemsSnapshot struct {
	CollectionID string               `json:"collection_id"`
	Items        map[string]ItemEntry `json:"items"`
	UpdatedAt    *time.Time           `json:"updated_at"`
}

// CollectionStats joins a catalog collection with its aggregate counters.
type CollectionStats struct {
	Collection
	ItemCount          int        `db:"item_count"`
	TotalSubmissions   int64      `db:"total_submissions"`
	UniqueContributors int64      `db:"unique_contributors"`
	AggregateUpdatedAt *time.Time `db:"aggregate_updated_at"`
}

// ItemStats joins a catalog item with its aggregate counters.
type ItemStats struct {
	Item
	TotalSubmissions   int64      `db:"total_submissions"`
	UniqueContributors int64      `db:"unique_contributors"`
	AggregateUpdatedAt *time.Time `db:"aggregate_updated_at"`
}

// ListingSource reports where a listing was served from.
type ListingSource string

const (
	ListingFromEdge     ListingSource = "edge"
	ListingFromSnapshot ListingSource = "snapshot"
	ListingFromFallback ListingSource = "fallback"
)

// CollectionListing is the read model returned by the collection listing call.
type CollectionListing struct {
	Collections []CollectionEntry `json:"collections"`
	Source      ListingSource     `json:"-"`
}

// ItemListing is the read model returned by the items-within-collection call.
type ItemListing struct {
	Collection CollectionEntry `json:"collection"`
	Items      []ItemEntry     `json:"items"`
	Source     ListingSource   `json:"-"`
}

// RebuildReport summarises a snapshot rebuild.
type RebuildReport struct {
	Collections      int `json:"collections"`
	ItemDocuments    int `json:"item_documents"`
	DeletedDocuments int `json:"deleted_documents"`
}

// String renders the report for operator logs.
func (r RebuildReport) String() string {
	return fmt.Sprintf("collections=%d item_documents=%d deleted_documents=%d", r.Collections, r.ItemDocuments, r.DeletedDocuments)
}
