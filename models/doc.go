// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the domain types shared across the controller:
poll and vote records, the status constants with their monotonic
transition order, and the drift taxonomy produced by reconciliation.

Polls are owned by the ledger and mutated only through the lifecycle
controller or the reconciliation engine. Votes reference their poll by
id; there are no back-pointers from votes to loaded poll objects.
*/
package models
