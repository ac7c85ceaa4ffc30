package arena

import (
	"bytes"
	"context"
	"slices"
)

// SortArray sorts the first n elements of v by cmp. It costs one area read
// and one area write.
func SortArray[T any](ctx context.Context, v *Array[T], n int64, cmp func(a, b T) int) error {
	xs, err := v.Load(ctx, 0, n)
	if err != nil {
		return err
	}
	slices.SortStableFunc(xs, cmp)
	return v.Store(ctx, 0, xs)
}

// SearchArray binary-searches the first n elements of v, which must be
// sorted by cmp, for target. It returns the insertion index and whether an
// equal element was found.
func SearchArray[T any](ctx context.Context, v *Array[T], n int64, target T, cmp func(a, b T) int) (int64, bool, error) {
	lo, hi := int64(0), n
	for lo < hi {
		mid := int64(uint64(lo+hi) >> 1)
		x, err := v.Get(ctx, mid)
		if err != nil {
			return 0, false, err
		}
		if cmp(x, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n {
		x, err := v.Get(ctx, lo)
		if err != nil {
			return 0, false, err
		}
		return lo, cmp(x, target) == 0, nil
	}
	return lo, false, nil
}

// SortRecords sorts the first n elements of rows by cmp over raw elements;
// use Field.Decode to compare fields. It costs one area read and one write.
func SortRecords(ctx context.Context, rows *StructArray, n int64, cmp func(a, b []byte) int) error {
	if err := rows.index(0, n); err != nil {
		return err
	}
	w := rows.schema.width
	raw, err := rows.area.read(ctx, 0, n*w)
	if err != nil {
		return err
	}
	elems := make([][]byte, n)
	for i := range elems {
		off := int64(i) * w
		elems[i] = bytes.Clone(raw[off : off+w])
	}
	slices.SortStableFunc(elems, cmp)
	return rows.area.write(ctx, 0, bytes.Join(elems, nil))
}
