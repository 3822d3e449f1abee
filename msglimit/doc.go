/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package msglimit provides a strict sliding-window message rate limiter.
//
// WindowLimiter keeps the instants of admitted messages that are still inside the trailing
// window [now - CountDuration, now] and admits a new message only if fewer than MaxMessages
// of them remain. Rejected messages are not recorded and do not affect further decisions.
// WindowLimiter is not safe for concurrent use.
//
// KeyedLimiter serializes access to one WindowLimiter per key (user, chat, client address)
// and implements the Allow contract used by the HTTP middleware.
package msglimit
