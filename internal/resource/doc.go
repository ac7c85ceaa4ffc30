// Package resource bounds what one computation may hold and issue.
//
// A Controller tracks three limits:
//
//   - cached bytes: area caches and input block caches reserve before
//     holding segment data and fail fast at the cap
//   - IO fan-out: cache fills and teardown take a slot per
//     concurrent store call
//   - IO throughput: throttled blob stores wait on a token bucket sized in
//     bytes per second
//
// Methods are safe for concurrent use. A nil Controller means no limits.
package resource
