// Package steparena runs long computations as a sequence of short,
// independently scheduled steps with a hard, metered budget each.
//
// All working state lives in an external blob store between steps: a
// fixed-layout work segment carved into areas (package arena), a small
// scalar checkpoint store (package checkpoint) and the read position of an
// immutable input (package reader). A step restores that state, runs the
// program until it finishes or the budget runs low, and commits atomically.
//
// # Quick Start
//
//	store := blobstore.NewMemoryStore()
//	c, _ := steparena.New(prog, store, steparena.WithStepBudget(20_000))
//	_ = c.IngestInput(ctx, input)
//	for {
//	    st, err := c.Step(ctx)
//	    if err != nil || st.Done {
//	        break
//	    }
//	}
//	total, _ := c.Result(ctx, "total")
//
// Solve runs the loop above and collects every result.
//
// # Programs
//
// A Program declares its layout once (Layout), the scalars it carries
// between steps (Bind), its initial area contents (Init), and the work of
// a step (Run). Run checks Step.ShouldYield between units of work and
// returns done=false when it is set; the step then flushes the touched
// areas, saves the scalars and the reader position, and reports
// Status{Done: false}. Exhausting the budget this way is not an error.
//
// # Atomicity
//
// Area writes are staged in memory for the duration of a step. At commit
// the pre-images of the touched ranges and the prior scalars go to an undo
// journal, the writes and scalars are applied, and the journal is removed.
// A failed step (parse error, bounds error, store failure) leaves the
// segments and scalars exactly as they were; a journal left by a crash is
// rolled back before the next step runs.
//
// # Backends
//
// Segments live in any blobstore.BlobStore: memory, local files (optionally
// memory-mapped), S3 (blobstore/s3) or MinIO (blobstore/minio). Scalars
// default to a document blob next to the segments and can be moved to
// DynamoDB (checkpoint/ddb).
package steparena
