// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cns

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/cns/pileup"
)

// Window is a ring of Site records covering [Start(), Start()+Len()).  The
// first WinSize() sites are the ones called at the next flush; the
// remaining readLen sites hold evidence from reads that straddle the
// window end.  Start() is always a multiple of WinSize().
type Window struct {
	winSize int
	start   pileup.PosType
	// origin is the ring index of logical site 0.
	origin int
	sites  []Site
}

// NewWindow allocates a window for reads of up to readLen bases.
func NewWindow(readLen, winSize int) *Window {
	return &Window{
		winSize: winSize,
		sites:   make([]Site, readLen+winSize),
	}
}

// WinSize returns the number of positions called per flush.
func (w *Window) WinSize() int { return w.winSize }

// Len returns the number of sites held.
func (w *Window) Len() int { return len(w.sites) }

// Start returns the position of logical site 0.
func (w *Window) Start() pileup.PosType { return w.start }

// Site returns logical site i, 0 <= i < Len().
func (w *Window) Site(i int) *Site {
	if i < 0 || i >= len(w.sites) {
		log.Panicf("cns.Window: site %d out of range [0, %d)", i, len(w.sites))
	}
	i += w.origin
	if i >= len(w.sites) {
		i -= len(w.sites)
	}
	return &w.sites[i]
}

// SiteAt returns the site holding pos, or false if pos is outside the
// window.
func (w *Window) SiteAt(pos pileup.PosType) (*Site, bool) {
	i := int(pos - w.start)
	if i < 0 || i >= len(w.sites) {
		return nil, false
	}
	return w.Site(i), true
}

// Reset clears every site and places the window at start.
func (w *Window) Reset(start pileup.PosType) {
	w.Reseed(start)
	w.origin = 0
}

// Reseed clears every site and moves the window to start, discarding any
// pending evidence.
func (w *Window) Reseed(start pileup.PosType) {
	if int(start)%w.winSize != 0 {
		log.Panicf("cns.Window: start %d is not a multiple of %d", start, w.winSize)
	}
	for i := range w.sites {
		w.sites[i].reset()
	}
	w.start = start
}

// Roll advances the window by WinSize() positions.  Evidence held for the
// positions past the old window end is kept; the vacated sites are cleared
// and reused for the new tail.
func (w *Window) Roll() {
	for i := 0; i < w.winSize; i++ {
		w.Site(i).reset()
	}
	w.origin = (w.origin + w.winSize) % len(w.sites)
	w.start += pileup.PosType(w.winSize)
}

// pending returns true if any site past the first WinSize() has evidence.
func (w *Window) pending() bool {
	for i := w.winSize; i < len(w.sites); i++ {
		if !w.Site(i).empty() {
			return true
		}
	}
	return false
}
