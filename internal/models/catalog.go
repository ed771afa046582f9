package models

import "time"

// Collection groups items that are recorded together (a script).
type Collection struct {
	ID          string    `db:"id" json:"collection_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Order       int       `db:"sort_order" json:"order"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
	UpdatedAt   time.Time `db:"updated_at" json:"-"`
}

// Item is a single prompt a contributor records audio for.
type Item struct {
	ID           string    `db:"id" json:"item_id"`
	CollectionID string    `db:"collection_id" json:"collection_id"`
	Text         string    `db:"text" json:"text"`
	Type         string    `db:"type" json:"type"`
	Order        int       `db:"sort_order" json:"order"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// DefaultItemType is applied to seeded items without an explicit type.
const DefaultItemType = "mora"

// CatalogSeed is the decoded content of the seed files.
type CatalogSeed struct {
	Collections []Collection
	Items       []Item
}

// CatalogSeedResult reports what a seed run changed.
type CatalogSeedResult struct {
	Collections       int  `json:"collections"`
	Items             int  `json:"items"`
	PrunedCollections int  `json:"pruned_collections"`
	PrunedItems       int  `json:"pruned_items"`
	SnapshotsRebuilt  bool `json:"snapshots_rebuilt"`
}
