// Package cache implements the two-tier result cache for yoinker lookups.
//
// Tiers, consulted in order by the Resolver:
//
//  1. Snapshot store: one JSON file per identifier holding the service's
//     positive response. A snapshot that decodes as a yoinker short-circuits
//     the lookup entirely; a non-yoinker snapshot degrades into a NotFound.
//  2. Negative ledger (404.txt): append-only set of identifiers the service
//     confirmed absent. Loaded fully at start; a ledgered identifier is
//     never queried over the network again by any later run.
//  3. Memo tier: short-lived memoization of terminal results. Process-local
//     by default (30 minute TTL, full clear past 512 entries); optionally
//     backed by Redis when multiple invocations should share warm state.
//
// The Resolver owns the read paths; all durable writes go through pkg/sink.
package cache
