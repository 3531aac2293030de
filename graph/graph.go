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

// Package graph is the append-only commit DAG and the quilt-scoped tag
// table. Commit ids are monotone and parent links reference only
// pre-existing ids, so cycles are structurally impossible.
package graph

import (
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/LDSLab/stoicheia/patchstore"
)

var ErrUnknownTag = errors.New("unknown tag")

// NewCommit inserts a commit. parent may be nil only for the first commit in
// a quilt's history; any tag being overwritten supplies the parent.
func NewCommit(tx *sql.Tx, parent *int64, message string) (int64, error) {
	res, err := tx.Exec(`INSERT INTO Comm (parent_comm_id, message) VALUES (?, ?)`, parent, message)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "insert commit")
	}
	commID, err := res.LastInsertId()
	return commID, pkgerrors.Wrap(err, "insert commit")
}

// Message returns a commit's message.
func Message(tx *sql.Tx, commID int64) (string, error) {
	var msg string
	err := tx.QueryRow(`SELECT message FROM Comm WHERE comm_id = ?`, commID).Scan(&msg)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("commit %d does not exist", commID)
	}
	return msg, pkgerrors.Wrapf(err, "load commit %d", commID)
}

// parentOf returns the commit's parent, or nil at a root.
func parentOf(tx *sql.Tx, commID int64) (*int64, error) {
	var parent sql.NullInt64
	err := tx.QueryRow(`SELECT parent_comm_id FROM Comm WHERE comm_id = ?`, commID).Scan(&parent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("commit %d does not exist", commID)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load commit %d", commID)
	}
	if !parent.Valid {
		return nil, nil
	}
	p := parent.Int64
	return &p, nil
}

// Walk is a lazy child-to-root cursor over commit ancestry. An explicit
// cursor rather than recursion: histories can be long.
type Walk struct {
	tx   *sql.Tx
	next *int64
}

// Ancestors yields commID, then its parent, transitively to the root.
func Ancestors(tx *sql.Tx, commID int64) *Walk {
	id := commID
	return &Walk{tx: tx, next: &id}
}

// Next returns the next commit in child-to-root order. ok is false once the
// root has been passed.
func (w *Walk) Next() (commID int64, ok bool, err error) {
	if w.next == nil {
		return 0, false, nil
	}
	commID = *w.next
	w.next, err = parentOf(w.tx, commID)
	if err != nil {
		return 0, false, err
	}
	return commID, true, nil
}

// ResolveTag returns the commit a tag points to.
func ResolveTag(tx *sql.Tx, quilt, tag string) (int64, error) {
	var commID int64
	err := tx.QueryRow(
		`SELECT comm_id FROM Tag WHERE quilt_name = ? AND tag_name = ?`, quilt, tag).Scan(&commID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %q on quilt %q", ErrUnknownTag, tag, quilt)
	}
	return commID, pkgerrors.Wrapf(err, "resolve tag %q/%q", quilt, tag)
}

// SetTag upserts a tag. Overwriting does not delete the previously
// pointed-to commit; it merely becomes eligible for GC.
func SetTag(tx *sql.Tx, quilt, tag string, commID int64) error {
	_, err := tx.Exec(`
		INSERT INTO Tag (quilt_name, tag_name, comm_id) VALUES (?, ?, ?)
		ON CONFLICT (quilt_name, tag_name) DO UPDATE SET comm_id = excluded.comm_id`,
		quilt, tag, commID)
	return pkgerrors.Wrapf(err, "set tag %q/%q", quilt, tag)
}

// GCStats counts what an Untag swept.
type GCStats struct {
	Commits int
	Patches int
}

// Untag removes the tag and garbage-collects from the pointed-to commit
// toward the root. A commit is deletable iff no tag in any quilt references
// it and no commit has it as parent. Eligible commits and their patches are
// deleted child-to-parent; the walk stops at the first non-deletable
// ancestor.
func Untag(tx *sql.Tx, quilt, tag string) (GCStats, error) {
	var stats GCStats
	commID, err := ResolveTag(tx, quilt, tag)
	if err != nil {
		return stats, err
	}
	if _, err := tx.Exec(
		`DELETE FROM Tag WHERE quilt_name = ? AND tag_name = ?`, quilt, tag); err != nil {
		return stats, pkgerrors.Wrapf(err, "delete tag %q/%q", quilt, tag)
	}

	cur := &commID
	for cur != nil {
		deletable, err := isDeletable(tx, *cur)
		if err != nil {
			return stats, err
		}
		if !deletable {
			break
		}
		parent, err := parentOf(tx, *cur)
		if err != nil {
			return stats, err
		}
		metas, err := patchstore.ByCommit(tx, *cur)
		if err != nil {
			return stats, err
		}
		ids := make([]int64, len(metas))
		for i, m := range metas {
			ids[i] = m.PatchID
		}
		if err := patchstore.Delete(tx, ids); err != nil {
			return stats, err
		}
		if _, err := tx.Exec(`DELETE FROM Comm WHERE comm_id = ?`, *cur); err != nil {
			return stats, pkgerrors.Wrapf(err, "delete commit %d", *cur)
		}
		stats.Commits++
		stats.Patches += len(ids)
		cur = parent
	}
	return stats, nil
}

func isDeletable(tx *sql.Tx, commID int64) (bool, error) {
	var tags int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM Tag WHERE comm_id = ?`, commID).Scan(&tags); err != nil {
		return false, pkgerrors.Wrapf(err, "count tags of commit %d", commID)
	}
	if tags > 0 {
		return false, nil
	}
	var children int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM Comm WHERE parent_comm_id = ?`, commID).Scan(&children); err != nil {
		return false, pkgerrors.Wrapf(err, "count children of commit %d", commID)
	}
	return children == 0, nil
}

// TagInfo is one row of the quilt's tag table.
type TagInfo struct {
	Tag    string
	CommID int64
}

// Tags lists the quilt's tags.
func Tags(tx *sql.Tx, quilt string) ([]TagInfo, error) {
	rows, err := tx.Query(
		`SELECT tag_name, comm_id FROM Tag WHERE quilt_name = ? ORDER BY tag_name`, quilt)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list tags of %q", quilt)
	}
	defer rows.Close()

	var out []TagInfo
	for rows.Next() {
		var ti TagInfo
		if err := rows.Scan(&ti.Tag, &ti.CommID); err != nil {
			return nil, pkgerrors.Wrapf(err, "list tags of %q", quilt)
		}
		out = append(out, ti)
	}
	return out, pkgerrors.Wrapf(rows.Err(), "list tags of %q", quilt)
}
