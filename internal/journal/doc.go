// Package journal makes a step's writes atomic.
//
// A Staged blob buffers every write of a step in memory. At commit the
// pre-images of the touched ranges and the prior values of the touched
// scalars are written to an undo journal blob in a single Put, then the
// writes and scalars are applied, then the journal is deleted. A journal
// that survives (crash or failed rollback) is replayed by Recover before
// the next step runs.
package journal
