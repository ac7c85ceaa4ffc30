// Package arena lays fixed-size areas out over one external segment.
//
// An Arena is a bump allocator: Alloc hands out disjoint byte ranges in call
// order and there is no free, no coalescing and no growth. Offsets are never
// persisted. They are recomputed from the allocation sequence each time a
// consumer builds its layout, so the sequence must be identical on every
// construction; Fingerprint lets callers detect a changed layout.
//
// An Area is accessed either directly (every Extract or Replace is one
// external call) or through a local cache populated by Cache and written
// back by Flush. The mode is one-way within a step: Cache is rejected with
// ErrMixedAccess once the area has taken a direct write that was not yet
// committed.
//
// Typed views overlay fixed-width encodings from package codec on an area:
//
//	counters, _ := arena.AllocArray(a, codec.Uint64{}, 2)
//	_ = counters.Set(ctx, 0, 5)
//
//	s := arena.NewSchema()
//	lo := arena.AddField(s, "lo", codec.Int64{})
//	hi := arena.AddField(s, "hi", codec.Int64{})
//	rows, _ := arena.AllocStructArray(a, s, 64, arena.AutoCache())
//	v, _ := lo.Get(ctx, rows.At(3))
package arena
