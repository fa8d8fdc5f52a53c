// Package models defines the core domain models shared by every component.
//
// # Models
//
//   - DebtGroup: a named, shared collection of debtees with a creator
//   - Debtee: one person owing money within a group, with a paid/unpaid flag
//   - Snapshot: the complete, versioned state of all groups as delivered by
//     the store's live change feed
//
// # Design Principles
//
// 1. **Snapshots are read-only**: every component treats a received Snapshot
// as an immutable value. Mutations go through the store, never through a
// locally held copy — the next snapshot is the only source of truth.
//
// 2. **IDs are opaque strings**: group IDs are assigned by the store on
// creation, debtee IDs are generated client-side at add time. Neither is
// parsed anywhere.
//
// 3. **Avoid circular references**: relationships use ID strings, not
// pointers.
package models
