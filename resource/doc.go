// Package resource provides reference-counted handle tables.
//
// A Slots table maps small integer handles to Go values. It backs every
// place where an opaque integer must stand in for a Go value: script value
// references handed across the native engine ABI, engine contexts, and the
// identifiers of host callbacks and external objects.
//
// # Handles
//
// Handle 0 is always invalid. Freed slots are reused, and each reuse bumps
// the slot generation encoded in the handle's high bits, so stale handles
// fail lookup instead of aliasing a newer entry:
//
//	table := resource.NewSlots[*thunk]()
//
//	h, err := table.Insert(t)   // refs = 1
//	table.AddRef(h)             // refs = 2
//	table.Release(h)            // refs = 1
//	v, _, ok := table.Release(h) // refs = 0, entry removed, v returned
//
// # Concurrency
//
// All operations take the table lock, so tables may be touched from
// finalizer goroutines. Callbacks passed to Each and RemoveIf run under the
// lock and must not re-enter the table.
//
// # Memory Management
//
// Entries are not garbage collected. Owners must Release or Remove them, or
// Close the table to drop everything at once. Values implementing Dropper
// are notified on Close.
package resource
