package domain

import "time"

// MigrationState tracks a category migration saga.
type MigrationState string

const (
	MigrationStatePending   MigrationState = "pending"
	MigrationStateMigrating MigrationState = "migrating"
	MigrationStateCommitted MigrationState = "committed"
	MigrationStateFailed    MigrationState = "failed"
)

// MigrationItemKind distinguishes blob renames from product retags.
type MigrationItemKind string

const (
	MigrationItemBlob    MigrationItemKind = "blob"
	MigrationItemProduct MigrationItemKind = "product"
)

// MigrationItem is one step of a saga. For blob items Source and Destination are object paths; for
// product items Source is the product document id and Destination the new category label.
type MigrationItem struct {
	Kind        MigrationItemKind
	Source      string
	Destination string
	State       MigrationState
}

// CategoryMigration moves everything tagged with one category onto another.
type CategoryMigration struct {
	ID           string
	CategoryID   string
	CategoryName string
	TargetID     string
	TargetName   string
	State        MigrationState
	Cursor       int
	Items        []MigrationItem
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Finished reports whether no further step will run without intervention.
func (m CategoryMigration) Finished() bool {
	return m.State == MigrationStateCommitted
}

// CommittedItems counts items already applied.
func (m CategoryMigration) CommittedItems() int {
	n := 0
	for _, item := range m.Items {
		if item.State == MigrationStateCommitted {
			n++
		}
	}
	return n
}
