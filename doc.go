// Package streampass provides a streaming-payment pass engine for Go
// applications.
//
// Streampass is designed as a library, not a service. A subscriber keeps a
// money stream running into the engine; while it runs, their active pass
// accrues time-transmitted value (TTV), and the accrued value selects a
// tier from an owner-controlled threshold schedule. It provides:
//
//   - Pass issuance on a subscriber's first stream, reactivation on re-subscription
//   - Per-second TTV accrual with overflow-checked 256-bit arithmetic
//   - Transferable passes; moving an active pass terminates the sender's stream
//   - Owner-only replacement of the tier schedule with immediate effect
//   - Memory, SQLite, PostgreSQL and MongoDB stores
//   - Plugins for audit trails, OpenTelemetry metrics and Redis stream fan-out
//
// # Quick Start
//
// Create an engine over a store and a streaming protocol host:
//
//	import (
//	    "github.com/xraph/streampass"
//	    "github.com/xraph/streampass/flow/sim"
//	    "github.com/xraph/streampass/store/sqlite"
//	    "github.com/xraph/streampass/tier"
//	)
//
//	store, err := sqlite.Open(ctx, "streampass.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	host := sim.New(hostAddr)
//	engine, err := streampass.New(store, host, streampass.Config{
//	    Address:  appAddr,
//	    Host:     hostAddr,
//	    Token:    tokenAddr,
//	    Name:     "BREAD STATION",
//	    Symbol:   "BRD",
//	    Owner:    ownerAddr,
//	    Schedule: tier.MustParseSchedule([]string{"0", "1", "2"}, 18),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	host.Register(appAddr, engine)
//
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(ctx)
//
// # Lifecycle
//
// The host delivers three notifications through HandleFlow:
//
//	created     issue or reactivate a pass and start accruing
//	updated     accrue at the old rate, continue at the new one
//	terminated  accrue the final value and freeze the pass
//
// Each notification, transfer, switch and owner call runs in one store
// transaction under a single engine lock. A protocol call made from inside
// a transaction, such as the termination a transfer triggers, re-enters
// the engine on the same transaction. Plugins are notified after commit.
//
// # Tiers
//
// ActiveTier projects TTV to the current second without writing it and
// resolves it against the schedule:
//
//	level, err := engine.ActiveTier(ctx, subscriber)
//
// # TypeID
//
// Pass ids are dense integers starting at 1. Every transaction receives a
// TypeID receipt and every plugin event a TypeID event id:
//
//	rcpt_01h2xcejqtf2nbrexx3vqjhp41  // Receipt ID
//	evt_01h455vb4pex5vsknk084sn02q   // Event ID
package streampass
