// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package cache stores computed voting spreads in Redis.
//
// Live spreads are invalidated whenever a proposal's votes or state change.
// Dated spreads are only cached for days that have ended, since later
// snapshots cannot change them. Without REDIS_ADDR the server uses Noop.
package cache
