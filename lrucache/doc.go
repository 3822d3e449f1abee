/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides an in-memory cache with an LRU eviction policy and Prometheus metrics.
// It keeps the per-key sliding windows of msglimit.KeyedLimiter.
package lrucache
