// Package op defines the data model shared by the operation scheduler and
// its collaborators.
//
// This package contains types and pure functions only. The scheduler
// (internal/queue), the config loader, the journal and the harness all import
// op; op imports nothing internal.
//
// Key design constraints:
//   - Category is a closed set; relationships between categories are expressed
//     only through DependencyTable and RuleTable, never derived dynamically
//   - Tables are immutable values injected into a scheduler, so several
//     isolated schedulers can coexist
//   - Cancellation is an Outcome kind, never a failure
package op
