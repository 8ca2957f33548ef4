package domain

// BlockRecord stores one range block mirrored from the remote block list.
// Rows are written once and never updated; the remote id is the primary key.
type BlockRecord struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement:false;not null"`

	// Timestamp is the ISO-8601 UTC creation time reported upstream. It must stay
	// fixed-width (e.g. 2020-01-01T00:00:00Z) so MAX() sorts chronologically.
	Timestamp string `gorm:"column:timestamp;type:text;not null;index:idx_block_records_timestamp"`

	// Expiry is either an ISO-8601 UTC time or the upstream "infinity" marker.
	Expiry string `gorm:"column:expiry;type:text;not null;index:idx_block_records_expiry"`

	// RangeStart and RangeEnd hold the inclusive address bounds as upper-case
	// fixed-width hex (see EncodeAddress).
	RangeStart string `gorm:"column:range_start;type:text;not null;index:idx_block_records_range_start"`
	RangeEnd   string `gorm:"column:range_end;type:text;not null"`
}

func (BlockRecord) TableName() string {
	return "block_records"
}
