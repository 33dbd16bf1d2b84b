// Package streamidx provides modification-aware in-memory indexes —
// HashIndex and ValueIndex — backed by a durable key-value store
// (pkg/durastore). HashIndex tracks which entries have been written since
// the last checkpoint and evicts under two independent pressures: running
// out of room for new keys (safe eviction, which only ever drops entries
// the store already matches) and accumulating too many unpersisted writes
// (dirty eviction, which flushes a write to the store and marks the entry
// clean, dropping it from memory only when no free slot is left).
// ValueIndex holds a single value and does no eviction.
//
// Aggregates compose several indexes into one struct and checkpoint them
// together with Checkpoint, which persists every field and then snapshots
// the store.
package streamidx
