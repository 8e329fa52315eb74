// Package central implements the BLE central-role management core: a
// registry of discovered peripherals, the connect/disconnect state machine
// driven by asynchronous transport callbacks, scan session control with
// application-level prefix filtering, and change notifications for a UI-style
// consumer.
//
// All registry mutation happens on the transport dispatch goroutine.
// Snapshot and Subscribe are safe to call from any goroutine.
package central
