// Package identity owns principal records: the account identity, its
// credentials and the single active refresh slot.
//
// Stores enforce email and external-id uniqueness and perform every refresh
// slot operation atomically with the principal row. Three implementations
// ship: MemoryStore for tests and single-process runs, BoltStore for a
// single node with durable state, PostgresStore for shared deployments.
package identity
