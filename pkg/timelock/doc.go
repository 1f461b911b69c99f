// Package timelock provides the library API for time-locked funds.
//
// A Client turns (amount, duration) intents into ledger lock requests,
// keeps a per-owner snapshot of lock records, and counts each lock down to
// its unlock instant. When a countdown reaches zero the snapshot is
// refreshed once, after a short delay, so the ledger's view can catch up.
//
// # Consistency
//
// The ledger is the only source of truth. Creates and withdrawals are never
// applied to the snapshot locally; they show up after the refresh that
// follows a confirmed ledger call. A failed refresh keeps the previous
// snapshot.
//
// # Concurrency
//
//   - One create may be in flight per session, and one withdrawal per lock.
//     A second request for the same target fails with E_OPERATION_IN_PROGRESS
//     without reaching the ledger.
//
//   - Concurrent refreshes share one ledger fetch.
//
//   - Ledger calls carry no timeout of their own. A stuck call keeps its
//     operation pending until the ledger answers or the caller's context ends.
//
//   - Disconnect empties the snapshot and stops the countdown before it
//     returns; a fetch that completes afterwards is dropped.
//
// # Usage
//
//	l := ledger.NewMemory(nil)
//	client, err := timelock.New(timelock.Options{Ledger: l})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if _, err := client.Connect(ctx, "alice"); err != nil {
//	    return err
//	}
//	res, err := client.CreateLockFromForm(ctx, "0.5", "sol", "1", "day")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.LockID, client.RemainingSeconds(res.LockID))
package timelock
