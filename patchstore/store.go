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

// Package patchstore persists compressed patch blobs alongside their
// bounding boxes and answers range-overlap queries. Patches are never
// updated after insert.
package patchstore

import (
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	stmath "github.com/LDSLab/stoicheia/common/math"
	"github.com/LDSLab/stoicheia/kv"
	"github.com/LDSLab/stoicheia/patch"
)

// ErrStoreConflict - a patch id collided on insert. Ids are allocated by the
// store, so this indicates a corrupted id sequence.
var ErrStoreConflict = errors.New("patch id conflict")

// Meta is one Patch row: the blob's owning commit, its decompressed size and
// its bounding box in storage-index space.
type Meta struct {
	PatchID          int64
	CommID           int64
	DecompressedSize uint64
	Bounds           []stmath.Bounds
}

// Insert writes the Patch row and the PatchContent blob in the caller's
// transaction and returns the allocated patch id.
func Insert(tx *sql.Tx, commID int64, bounds []stmath.Bounds, decompressedSize uint64, blob []byte) (int64, error) {
	if len(bounds) < 1 || len(bounds) > patch.MaxDims {
		return 0, fmt.Errorf("patch bounding box must have 1..%d dimensions, got %d", patch.MaxDims, len(bounds))
	}
	dims := make([]any, 2*patch.MaxDims)
	for d, b := range bounds {
		dims[2*d] = b.Min
		dims[2*d+1] = b.Max
	}
	args := append([]any{commID, int64(decompressedSize)}, dims...)
	res, err := tx.Exec(`
		INSERT INTO Patch (comm_id, decompressed_size,
			dim_0_min, dim_0_max, dim_1_min, dim_1_max,
			dim_2_min, dim_2_max, dim_3_min, dim_3_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "insert patch row")
	}
	patchID, err := res.LastInsertId()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "insert patch row")
	}
	if _, err := tx.Exec(
		`INSERT INTO PatchContent (patch_id, content) VALUES (?, ?)`, patchID, blob); err != nil {
		if kv.IsConstraint(err) {
			return 0, fmt.Errorf("%w: id %d", ErrStoreConflict, patchID)
		}
		return 0, pkgerrors.Wrap(err, "insert patch content")
	}
	return patchID, nil
}

// Overlapping returns the patch rows of one commit whose bounding box
// intersects bbox on every axis. A linear scan over the commit's rows with
// the pure geometric predicate; an R-tree index could replace it without
// changing results.
func Overlapping(tx *sql.Tx, commID int64, bbox []stmath.Bounds) ([]Meta, error) {
	metas, err := ByCommit(tx, commID)
	if err != nil {
		return nil, err
	}
	var out []Meta
	for _, m := range metas {
		if len(m.Bounds) != len(bbox) {
			return nil, fmt.Errorf("patch %d has %d dimensions, request has %d",
				m.PatchID, len(m.Bounds), len(bbox))
		}
		if stmath.Overlap(m.Bounds, bbox) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ByCommit returns every patch row attached to the commit.
func ByCommit(tx *sql.Tx, commID int64) ([]Meta, error) {
	rows, err := tx.Query(`
		SELECT patch_id, comm_id, decompressed_size,
			dim_0_min, dim_0_max, dim_1_min, dim_1_max,
			dim_2_min, dim_2_max, dim_3_min, dim_3_max
		FROM Patch WHERE comm_id = ?`, commID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query commit patches")
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, pkgerrors.Wrap(rows.Err(), "query commit patches")
}

func scanMeta(rows *sql.Rows) (Meta, error) {
	var m Meta
	var size int64
	mins := make([]sql.NullInt64, patch.MaxDims)
	maxs := make([]sql.NullInt64, patch.MaxDims)
	if err := rows.Scan(&m.PatchID, &m.CommID, &size,
		&mins[0], &maxs[0], &mins[1], &maxs[1],
		&mins[2], &maxs[2], &mins[3], &maxs[3]); err != nil {
		return Meta{}, pkgerrors.Wrap(err, "scan patch row")
	}
	m.DecompressedSize = uint64(size)
	for d := 0; d < patch.MaxDims; d++ {
		if !mins[d].Valid {
			break
		}
		m.Bounds = append(m.Bounds, stmath.Bounds{Min: mins[d].Int64, Max: maxs[d].Int64})
	}
	return m, nil
}

// Load fetches the compressed blob bytes for one patch.
func Load(tx *sql.Tx, patchID int64) ([]byte, error) {
	var blob []byte
	err := tx.QueryRow(`SELECT content FROM PatchContent WHERE patch_id = ?`, patchID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: patch %d has no content row", patch.ErrCorruptPatch, patchID)
	}
	return blob, pkgerrors.Wrapf(err, "load patch %d", patchID)
}

// Delete removes the given patches and their blobs.
func Delete(tx *sql.Tx, patchIDs []int64) error {
	for _, id := range patchIDs {
		if _, err := tx.Exec(`DELETE FROM PatchContent WHERE patch_id = ?`, id); err != nil {
			return pkgerrors.Wrapf(err, "delete patch content %d", id)
		}
		if _, err := tx.Exec(`DELETE FROM Patch WHERE patch_id = ?`, id); err != nil {
			return pkgerrors.Wrapf(err, "delete patch %d", id)
		}
	}
	return nil
}
