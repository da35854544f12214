// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-gameid.
//
// go-gameid is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-gameid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-gameid.  If not, see <https://www.gnu.org/licenses/>.

package chd

import "fmt"

// Default prefetch worker tuning, matching typical optical drive seek
// patterns: enough readahead to ride out sequential reads, enough cache
// room that a short seek back doesn't immediately evict what was just
// prefetched.
const (
	defaultCacheCapacity = 100
	defaultReadahead     = 8
	readaheadLowWater    = 2
)

// options configures the hunk-cache prefetch worker behind an Image.
type options struct {
	cacheCapacity int
	readahead     int
}

func defaultOptions() options {
	return options{cacheCapacity: defaultCacheCapacity, readahead: defaultReadahead}
}

// Option configures an Image at Open time.
type Option func(*options)

// WithCacheCapacity overrides the number of decompressed hunks the LRU
// cache holds at once.
func WithCacheCapacity(capacity int) Option {
	return func(o *options) { o.cacheCapacity = capacity }
}

// WithReadahead overrides how many hunks ahead of the last request the
// prefetch worker tries to keep warm in the cache.
func WithReadahead(hunks int) Option {
	return func(o *options) { o.readahead = hunks }
}

func (o options) validate() error {
	if o.readahead < 1 {
		return fmt.Errorf("%w: readahead must be positive, got %d", ErrCacheTooSmall, o.readahead)
	}
	if o.cacheCapacity < 2*o.readahead {
		return fmt.Errorf("%w: capacity %d must be at least 2x readahead %d",
			ErrCacheTooSmall, o.cacheCapacity, o.readahead)
	}
	return nil
}
