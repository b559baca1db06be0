// Package history keeps a SQLite ledger of pipeline runs and the articles
// each run produced.
//
// A run row is opened when processing starts and finalized with its
// counters when it ends. Rows still marked running at the next start
// belong to a process that died and are closed as interrupted. The
// database carries a single schema version; a mismatch is reported and the
// ledger can be deleted to adopt the new schema.
package history
