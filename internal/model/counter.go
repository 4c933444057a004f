package model

// Counter is a named monotonic sequence. Values are never handed out twice.
type Counter struct {
	Name  string `gorm:"type:varchar(64);primaryKey" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}
