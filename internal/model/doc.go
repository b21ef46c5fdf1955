// Package model defines shared data types used across the feedsync engine.
//
// Conventions:
//   - IDs: opaque strings assigned by the backend (UUIDs in practice)
//   - Timestamps: time.Time, UTC on the wire
//   - Denormalized user snapshots (author refs) may be absent from partial
//     pushes; the stores are responsible for preserving previously known
//     values rather than discarding them
package model
