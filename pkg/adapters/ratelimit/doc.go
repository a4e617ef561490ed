// Package ratelimit provides sliding-window-log admission control keyed by
// (routing key, caller).
//
// On each Admit call the window for the pair is pruned of timestamps older
// than now-window, the survivors are counted, and the request is admitted
// (and its timestamp recorded) only if the count is below the limit. A
// rejected request is not recorded. There are no fixed buckets, so no
// trailing interval of one window ever holds more than the limit.
//
// # Backends
//
//   - RedisLimiter: the window is a Redis sorted set and the prune, count and
//     conditional add run as one Lua script, so every process sharing the
//     Redis enforces one global limit per pair.
//
//   - MemoryLimiter: a mutex-guarded map. Limits are per process. Use it for
//     tests and single-instance deployments only; Shared reports false so
//     callers can tell the difference.
//
// # Errors
//
// RedisLimiter wraps every backend failure with domain.ErrLimiterUnavailable.
// Whether to admit or reject on such an error is decided by the caller (see
// policy.FailureMode).
//
// Window state is advisory: losing it (a restart, a Redis flush) only makes
// rate limiting less precise for one window.
package ratelimit
