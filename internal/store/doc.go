// Package store provides storage and pub/sub functionality for batch job
// records.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [JobRecord]: Storage representation of one job's lifecycle
//
// The store is designed for concurrent access. Subscribers receive updates
// via channels with non-blocking sends (slow subscribers miss updates rather
// than block the batch workers).
package store
