// Package redundancy orchestrates encrypted file storage across multiple
// heterogeneous backends, providing redundant writes, health-aware reads
// and a single event stream for state changes.
//
// The Manager is the only surface callers need. It owns the encryption
// boundary: plaintext is sealed before the first provider is contacted and
// opened only after a replica arrives, so no backend ever observes file
// contents. Each write fans out concurrently to enough providers to
// satisfy the configured redundancy level, and each confirmed replica is
// tracked in a SQLite-backed ReplicaIndex so later reads, deletes and
// restores know exactly where copies live and which key sealed them.
//
// # Redundancy Levels
//
// Three levels control how many providers must confirm a write:
//
//   - none: a single confirmed replica
//   - dual: two confirmed replicas
//   - full: a confirmed replica on every configured provider
//
// The threshold is computed against the configured provider count and a
// store fails with RedundancyError when fewer providers confirm, while the
// replicas that did confirm stay stored and tracked.
//
// # Health Model
//
// The HealthMonitor maintains an exponentially weighted success score per
// provider, fed by real operation outcomes and a periodic background probe
// loop. Scores order retrieval attempts and select store candidates;
// status transitions are published on the event bus. Health reads are
// lock-free and never perform I/O, so routing decisions cost nothing.
//
// A provider whose score sinks below the unhealthy cutoff is passed over
// while healthy providers can cover the redundancy target. When they
// cannot, unhealthy providers are attempted anyway rather than silently
// lowering the target.
//
// # Events
//
// The Bus fans manager events out to context-scoped subscribers: health
// transitions, primary and redundancy-level changes, and file statistics
// updates. Publishing never blocks; slow subscribers lose events rather
// than stalling operations.
//
// # Usage
//
//	mgr, err := redundancy.NewManager(redundancy.ManagerConfig{
//		Providers:   providers,
//		Primary:     interfaces.ProviderFirebase,
//		Level:       interfaces.RedundancyDual,
//		ActiveKeyID: "primary",
//		Cipher:      cipher,
//		Monitor:     monitor,
//		Index:       index,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := mgr.Initialize(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	err = mgr.Store(ctx, contents, "documents/report.pdf")
//	data, err := mgr.Retrieve(ctx, "documents/report.pdf")
package redundancy
