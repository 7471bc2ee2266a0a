// Package invalidation keeps cached read-through projections consistent
// with the database after writes.
//
// Write paths publish Intents to the Bus after their transaction commits.
// Intents due immediately run on a background worker pool; delayed intents
// (the second half of a double delete) are persisted to a durable
// Redis-backed delay Queue and executed by the Drainer when due. The
// Verifier periodically samples recent relation rows and evicts cached
// entries that contradict them.
//
// The pipeline is fire-and-forget by design: Publish never blocks and never
// surfaces errors to the write path. Delivery is at least once and every
// operation is idempotent, so duplicate execution is harmless; any missed
// execution self-heals through cache TTLs and the verifier.
package invalidation
