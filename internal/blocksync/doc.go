// Package blocksync mirrors the remote block list into the local store.
//
// A run resolves its checkpoint (the newest stored timestamp, or the epoch for
// an empty store), then walks the feed forward from that point following
// continuation tokens until the feed reports no further pages. Inserts are
// idempotent, so records redelivered at the checkpoint boundary or after an
// interrupted run are absorbed by the store.
package blocksync
