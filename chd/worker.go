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

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// errWorkerClosed is returned by readHunk if the worker shut down before
// it could service the request.
var errWorkerClosed = errors.New("hunk worker closed")

// readRequest asks the worker goroutine to fetch a hunk. The caller blocks
// on resp until the worker has served it, from cache or by decompressing.
type readRequest struct {
	index uint32
	resp  chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// hunkWorker owns the CHD's HunkMap and is the only goroutine allowed to
// call HunkMap.ReadHunk. Both the foreground sector read in
// Image.CopyCurrentSector and background readahead are funneled through
// this one goroutine's run loop, so a codec's lazily-initialized decoder
// (codec_zstd.go's zstdCodec/cdZstdCodec, in particular) never sees two
// callers decompressing through it at once.
type hunkWorker struct {
	hunkMap   *HunkMap
	cache     *lru.Cache[uint32, []byte]
	reads     chan readRequest
	prefetch  chan uint32
	quit      chan struct{}
	wg        sync.WaitGroup
	readahead int
	lowWater  int
}

func newHunkWorker(hunkMap *HunkMap, opts options) (*hunkWorker, error) {
	cache, err := lru.New[uint32, []byte](opts.cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("create hunk cache: %w", err)
	}
	w := &hunkWorker{
		hunkMap:   hunkMap,
		cache:     cache,
		reads:     make(chan readRequest),
		prefetch:  make(chan uint32, 2),
		quit:      make(chan struct{}),
		readahead: opts.readahead,
		lowWater:  readaheadLowWater,
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// readHunk requests hunk index from the worker goroutine and blocks for
// the result, so the foreground sector-copy path gets the same exclusive
// access to the codec that background readahead already had.
func (w *hunkWorker) readHunk(index uint32) ([]byte, error) {
	resp := make(chan readResult, 1)
	select {
	case w.reads <- readRequest{index: index, resp: resp}:
	case <-w.quit:
		return nil, errWorkerClosed
	}

	select {
	case result := <-resp:
		return result.data, result.err
	case <-w.quit:
		return nil, errWorkerClosed
	}
}

// advisePrefetch posts a non-blocking readahead hint; a full channel means
// a burst is already in flight, so the hint is simply dropped.
func (w *hunkWorker) advisePrefetch(index uint32) {
	select {
	case w.prefetch <- index:
	default:
	}
}

func (w *hunkWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.reads:
			data, err := w.fetch(req.index)
			req.resp <- readResult{data: data, err: err}
			if err == nil {
				w.prefetchFrom(req.index)
			}
		case pinned := <-w.prefetch:
			w.prefetchFrom(pinned)
		}
	}
}

// fetch returns hunk index's data from cache, decompressing and caching it
// first on a miss. Only run calls this, so it never runs concurrently with
// itself or with a background prefetch.
func (w *hunkWorker) fetch(index uint32) ([]byte, error) {
	if data, ok := w.cache.Get(index); ok {
		return data, nil
	}
	data, err := w.hunkMap.ReadHunk(index)
	if err != nil {
		return nil, err
	}
	w.cache.Add(index, data)
	return data, nil
}

// prefetchFrom warms the readahead window immediately after pinned — hunks
// pinned+1 through pinned+readahead — stopping early once lowWater
// consecutive hunks past pinned are already cached.
func (w *hunkWorker) prefetchFrom(pinned uint32) {
	numHunks := w.hunkMap.NumHunks()

	warm := 0
	for i := 1; i <= w.readahead; i++ {
		idx := pinned + uint32(i) //nolint:gosec // readahead is a small positive constant
		if idx >= numHunks {
			break
		}
		if _, ok := w.cache.Peek(idx); !ok {
			break
		}
		warm++
	}
	if warm >= w.lowWater {
		return
	}

	for i := warm + 1; i <= w.readahead; i++ {
		idx := pinned + uint32(i) //nolint:gosec // readahead is a small positive constant
		if idx >= numHunks {
			break
		}
		select {
		case <-w.quit:
			return
		default:
		}
		if _, ok := w.cache.Peek(idx); ok {
			continue
		}
		data, err := w.hunkMap.ReadHunk(idx)
		if err != nil {
			continue
		}
		w.cache.Add(idx, data)
	}
}

func (w *hunkWorker) close() {
	close(w.quit)
	w.wg.Wait()
}
