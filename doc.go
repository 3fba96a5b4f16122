// Package tollgate provides an embeddable entitlement and settlement engine for Go applications.
//
// Tollgate is designed as a library, not a service. Import it directly into your Go
// application for maximum performance and flexibility. It provides:
//
//   - Permanent vault registration with single-owner bindings
//   - Subscription catalogs carrying price, duration, and revenue-split terms
//   - Time-limited, non-fungible access grants with inclusive expiry
//   - Three-way payment settlement through an escrow account (platform fee,
//     co-owner split, owner take, excess refund)
//   - Expiration-aware access checks and transfer-lock enforcement
//   - Pluggable hooks for every engine event
//
// # Quick Start
//
// Create a gate instance with your preferred store:
//
//	import (
//	    "github.com/xraph/tollgate"
//	    "github.com/xraph/tollgate/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create gate
//	gate := tollgate.New(store,
//	    tollgate.WithPlatformFee(1200),
//	    tollgate.WithTreasury("platform-treasury"),
//	)
//
//	// Start the gate (migrates, begins background workers)
//	if err := gate.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gate.Stop()
//
// # Core Concepts
//
// Vaults bind content identifiers to their owners, permanently:
//
//	err := gate.RegisterVault(ctx, "vault-go-internals", "alice")
//
// Subscriptions attach commercial terms to a vault the caller owns:
//
//	err := gate.SetSubscription(ctx, "alice", "vault-go-internals",
//	    tollgate.USD(4900),   // price
//	    30*24*time.Hour,      // access duration
//	    "",                   // display image (default applied)
//	    "bob",                // revenue co-owner
//	    5000,                 // co-owner share, basis points
//	)
//
// Purchases settle the payment and mint a grant for the receiver:
//
//	grant, receipt, err := gate.Purchase(ctx, "carol", "alice", "vault-go-internals", "carol", tollgate.USD(4900))
//
// Access checks answer the one question the engine exists for:
//
//	result, err := gate.HasAccess(ctx, "alice", "vault-go-internals", "carol")
//	if result.Granted {
//	    // Serve the vault until result.ExpiresAt
//	}
//
// # Settlement
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest currency
// unit (cents for USD, pence for GBP, etc). The platform takes its fee in
// basis points of the gross price, the co-owner takes basis points of what
// remains, and the owner receives the rest; every division floors and any
// overpayment is refunded. Each transfer runs through an escrow account so a
// failed leg never leaves funds with a payee.
//
// # Integration
//
// Tollgate integrates seamlessly with the Forgery ecosystem:
//
//   - Forge: framework extension with YAML config and lifecycle hooks
//   - Vessel: dependency injection of the constructed gate
//   - Grove: PostgreSQL, SQLite, and MongoDB persistence
//
// # TypeID
//
// Records Tollgate mints itself carry TypeIDs for globally unique, type-safe
// identification:
//
//	pay_01h2xcejqtf2nbrexx3vqjhp41  // Settlement receipt
//	evt_01h455vb4pex5vsknk084sn02q  // Audit event
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering. Vaults keep their caller-supplied
// identifiers and grants use a monotonic counter, mirroring how external
// systems reference them.
package tollgate
