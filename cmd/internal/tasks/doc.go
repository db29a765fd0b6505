// Package tasks is the system of record for a principal's task list.
//
// Stores are owner-scoped: every read and write takes the owning principal
// id, and a task belonging to someone else is reported as not found. The
// Service fronts a store with a read-through cache of the whole list and
// drops that cache entry after every successful write.
package tasks
