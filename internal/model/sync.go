package model

import "time"

// SyncState is a single-row table tracking the local revision and what has
// already been pushed to the remote authority.
type SyncState struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	Revision           int64     `gorm:"not null;default:0" json:"revision"`
	ReplicatedRevision int64     `gorm:"not null;default:0" json:"replicated_revision"`
	Seeded             bool      `gorm:"not null;default:false" json:"seeded"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SyncStateID is the primary key of the only SyncState row.
const SyncStateID = 1

// Company describes the operating business; it travels with snapshots.
type Company struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// Snapshot is the whole persisted state, as exchanged with the remote authority.
type Snapshot struct {
	Company   Company          `json:"company"`
	Clients   []Client         `json:"clients"`
	Depots    []Depot          `json:"depots"`
	Products  []Product        `json:"products"`
	Stock     []StockEntry     `json:"stock"`
	Documents []Document       `json:"documents"`
	Payments  []Payment        `json:"payments"`
	Counters  map[string]int64 `json:"counters"`
	Seeded    bool             `json:"seeded"`
	Revision  int64            `json:"revision"`
	TakenAt   time.Time        `json:"taken_at"`
}
