/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit drives a message through a rate Limiter.
//
// Processor asks the limiter whether the message may be delivered. A rejected message is either
// reported to the handler right away or, if backlogging is enabled, parked in a per-key backlog
// and re-checked once the limiter's retry-after estimate elapses, until the backlog timeout expires.
package ratelimit
