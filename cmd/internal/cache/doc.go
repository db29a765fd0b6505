// Package cache provides a read-through projection over a system of record.
//
// ReadThrough serves a principal's collection from a Backend and falls back
// to its loader on a miss or on any backend trouble; the backend is never
// authoritative. Writers call Invalidate after every successful write. A
// per-key generation counter keeps a load that started before the
// invalidation from storing what it read.
//
// The generation counter is per process. With a shared Redis backend a
// load in one process can still race an invalidation in another until the
// entry's TTL lapses.
package cache
