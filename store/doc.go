// Package store holds the key-value contract leadAuth keeps its refresh chains
// and revocation records in, a Redis implementation of it, and the decorators
// layered on top (bounded retries, revocation records).
package store
