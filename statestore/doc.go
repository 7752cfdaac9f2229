// Package statestore persists session state records in a remote
// key-value table, one flat row per session.
//
// Each row holds the record key, an optional epoch-seconds expiration
// attribute, and one string attribute per session data field, encoded
// by the codec package so that null values, empty strings and nested
// structures survive a table that cannot store them natively.
//
// Expiration is enforced lazily: an expired row is deleted the first
// time it is read, so callers never observe expired data. Rows that
// expire and are never read again are reclaimed by ReapExpired, a
// table-wide scan-and-delete sweep.
//
// A record is completely replaced on every write. There is no
// optimistic concurrency: a Set racing a Get or Remove for the same
// key is last-write-wins, subject only to the table's own per-row
// consistency guarantees.
package statestore
