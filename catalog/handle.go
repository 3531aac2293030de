// Copyright 2025 The Stoicheia Authors
// This file is part of Stoicheia.
//
// Stoicheia is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Stoicheia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Stoicheia. If not, see <http://www.gnu.org/licenses/>.

package catalog

import (
	"github.com/LDSLab/stoicheia/assemble"
	"github.com/LDSLab/stoicheia/patch"
)

// QuiltHandle caches (name, tag, axes) for repeated fetches and commits.
// The handle's axis order drives the axis order of the patches it returns
// and accepts; it may be any permutation of the quilt's declared order.
type QuiltHandle struct {
	cat  *Catalog
	name string
	tag  string
	axes []string
}

// Quilt returns a lightweight handle on (name, tag). Empty tag means
// "latest". axes may be nil, meaning the quilt's declared order.
func (c *Catalog) Quilt(name, tag string, axes []string) *QuiltHandle {
	if tag == "" {
		tag = DefaultTag
	}
	return &QuiltHandle{cat: c, name: name, tag: tag, axes: axes}
}

// Name returns the quilt name the handle is bound to.
func (h *QuiltHandle) Name() string { return h.name }

// Tag returns the tag the handle is bound to.
func (h *QuiltHandle) Tag() string { return h.tag }

// Fetch assembles a slice and returns it in the handle's axis order.
func (h *QuiltHandle) Fetch(selectors map[string]assemble.Selector) (*patch.Patch, error) {
	p, err := h.cat.Fetch(h.name, h.tag, selectors)
	if err != nil {
		return nil, err
	}
	if h.axes == nil {
		return p, nil
	}
	return p.Transposed(h.axes)
}

// Commit writes p, accepting it in the handle's (or any) axis order.
func (h *QuiltHandle) Commit(message string, p *patch.Patch) (int64, error) {
	return h.cat.Commit(h.name, h.tag, message, p)
}
