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

// Package axis maintains the authoritative ordered label sequences and the
// label<->storage-index translation.
//
// Axis order is the single locality knob the user has; sorting or permuting
// labels would invalidate every stored bounding box. Append-only is therefore
// a hard invariant: a label's storage index never changes once assigned.
package axis

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	pkgerrors "github.com/pkg/errors"
)

var (
	ErrUnknownAxis  = errors.New("unknown axis")
	ErrUnknownLabel = errors.New("unknown label")
	ErrUnknownIndex = errors.New("unknown storage index")
	// ErrAxisConflict - the same label supplied twice in one extension call.
	ErrAxisConflict = errors.New("conflicting axis labels")
)

const viewCacheSize = 128

// view is one axis's label sequence plus the inverse lookup. Labels are
// append-only, so a cached view is never wrong, only possibly short; readers
// reload on a miss before failing.
type view struct {
	labels []int64
	index  map[int64]int64 // label -> per-axis storage index
}

// Registry translates between labels and storage indices. All operations run
// against the caller's transaction; the registry itself only caches immutable
// label prefixes and is safe to share across reads.
type Registry struct {
	cache *lru.Cache[string, *view]
}

func NewRegistry() *Registry {
	cache, _ := lru.New[string, *view](viewCacheSize)
	return &Registry{cache: cache}
}

func cacheKey(name string) string { return strings.ToLower(name) }

// EnsureAxis creates the named axis if absent. Idempotent.
func (r *Registry) EnsureAxis(tx *sql.Tx, name string) error {
	_, err := tx.Exec(`INSERT INTO Axis (axis_name) VALUES (?) ON CONFLICT DO NOTHING`, name)
	return pkgerrors.Wrapf(err, "ensure axis %q", name)
}

func (r *Registry) exists(tx *sql.Tx, name string) error {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM Axis WHERE axis_name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %q", ErrUnknownAxis, name)
	}
	return pkgerrors.Wrapf(err, "lookup axis %q", name)
}

// load reads the full label sequence from the store and refreshes the cache.
func (r *Registry) load(tx *sql.Tx, name string) (*view, error) {
	if err := r.exists(tx, name); err != nil {
		return nil, err
	}
	rows, err := tx.Query(
		`SELECT label FROM AxisContent WHERE axis_name = ? ORDER BY global_storage_index`, name)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load axis %q", name)
	}
	defer rows.Close()

	v := &view{index: make(map[int64]int64)}
	for rows.Next() {
		var label int64
		if err := rows.Scan(&label); err != nil {
			return nil, pkgerrors.Wrapf(err, "load axis %q", name)
		}
		v.index[label] = int64(len(v.labels))
		v.labels = append(v.labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrapf(err, "load axis %q", name)
	}
	r.cache.Add(cacheKey(name), v)
	return v, nil
}

// cached returns the cached view, or loads one.
func (r *Registry) cached(tx *sql.Tx, name string) (*view, error) {
	if v, ok := r.cache.Get(cacheKey(name)); ok {
		return v, nil
	}
	return r.load(tx, name)
}

// ExtendAxis appends the labels not yet present, in the given order, and
// returns the storage index for every input label. Labels already present
// keep their existing index. A label supplied twice in one call fails with
// ErrAxisConflict.
func (r *Registry) ExtendAxis(tx *sql.Tx, name string, labels []int64) ([]int64, error) {
	if err := r.EnsureAxis(tx, name); err != nil {
		return nil, err
	}
	// Always reload inside the write transaction: another handle may have
	// appended since the view was cached.
	v, err := r.load(tx, name)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(labels))
	indices := make([]int64, len(labels))
	next := int64(len(v.labels))
	var appended []int64
	for i, label := range labels {
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("%w: axis %q label %d supplied twice", ErrAxisConflict, name, label)
		}
		seen[label] = struct{}{}
		if ix, ok := v.index[label]; ok {
			indices[i] = ix
			continue
		}
		indices[i] = next
		appended = append(appended, label)
		next++
	}
	for _, label := range appended {
		if _, err := tx.Exec(
			`INSERT INTO AxisContent (axis_name, label) VALUES (?, ?)`, name, label); err != nil {
			return nil, pkgerrors.Wrapf(err, "extend axis %q", name)
		}
	}
	// The transaction may still roll back; drop the cached view rather than
	// teaching it rows that might never commit.
	if len(appended) > 0 {
		r.cache.Remove(cacheKey(name))
	}
	return indices, nil
}

// LabelsToIndices translates labels into storage indices, order preserved.
// A missing label fails with ErrUnknownLabel unless extendOnMiss is set, in
// which case missing labels are appended (the commit path).
func (r *Registry) LabelsToIndices(tx *sql.Tx, name string, labels []int64, extendOnMiss bool) ([]int64, error) {
	if extendOnMiss {
		return r.ExtendAxis(tx, name, labels)
	}
	v, err := r.cached(tx, name)
	if err != nil {
		return nil, err
	}
	indices := make([]int64, len(labels))
	reloaded := false
	for i, label := range labels {
		ix, ok := v.index[label]
		if !ok && !reloaded {
			// The cached view may be a stale prefix; reload once before failing.
			if v, err = r.load(tx, name); err != nil {
				return nil, err
			}
			reloaded = true
			ix, ok = v.index[label]
		}
		if !ok {
			return nil, fmt.Errorf("%w: axis %q label %d", ErrUnknownLabel, name, label)
		}
		indices[i] = ix
	}
	return indices, nil
}

// IndicesToLabels is the inverse of LabelsToIndices. An index outside the
// axis's extent fails with ErrUnknownIndex.
func (r *Registry) IndicesToLabels(tx *sql.Tx, name string, indices []int64) ([]int64, error) {
	v, err := r.cached(tx, name)
	if err != nil {
		return nil, err
	}
	labels := make([]int64, len(indices))
	reloaded := false
	for i, ix := range indices {
		if (ix < 0 || ix >= int64(len(v.labels))) && !reloaded {
			if v, err = r.load(tx, name); err != nil {
				return nil, err
			}
			reloaded = true
		}
		if ix < 0 || ix >= int64(len(v.labels)) {
			return nil, fmt.Errorf("%w: axis %q index %d", ErrUnknownIndex, name, ix)
		}
		labels[i] = v.labels[ix]
	}
	return labels, nil
}

// Labels returns the full label sequence in storage-index order.
func (r *Registry) Labels(tx *sql.Tx, name string) ([]int64, error) {
	v, err := r.load(tx, name)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(v.labels))
	copy(out, v.labels)
	return out, nil
}

// AxisLen returns the current number of labels on the axis.
func (r *Registry) AxisLen(tx *sql.Tx, name string) (int, error) {
	v, err := r.load(tx, name)
	if err != nil {
		return 0, err
	}
	return len(v.labels), nil
}
