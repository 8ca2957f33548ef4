package blocksync

import (
	"blocksync/internal/domain"
	"blocksync/internal/feed"
	"blocksync/internal/metrics"
)

// ToRecord converts a feed block into a storable record. Blocks without both
// range bounds, and blocks starting at 0.0.0.0, are dropped; reason then names
// the filter that rejected them.
func ToRecord(block feed.Block) (record domain.BlockRecord, reason string, ok bool) {
	if block.RangeStart == nil || block.RangeEnd == nil {
		return domain.BlockRecord{}, metrics.DropReasonNoRange, false
	}

	start := domain.EncodeAddress(*block.RangeStart)
	if start == domain.ZeroIPv4Range {
		return domain.BlockRecord{}, metrics.DropReasonZeroStart, false
	}

	return domain.BlockRecord{
		ID:         block.ID,
		Timestamp:  block.Timestamp,
		Expiry:     block.Expiry,
		RangeStart: start,
		RangeEnd:   domain.EncodeAddress(*block.RangeEnd),
	}, "", true
}
