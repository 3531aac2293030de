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

package kv

// DBSchemaVersion versions list
// 1.0 - initial layout: Quilt, Axis, AxisContent, Comm, Patch, PatchContent, Tag
var DBSchemaVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Version of the store layout. Bumped only on incompatible DDL changes;
// the schema itself is idempotent and re-applied on every open.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

const (
	// Quilt - named tensors and their axis tuples.
	// quilt_name (case-insensitive) -> axes (JSON array of axis names, order fixed at creation)
	Quilt = "Quilt"

	// Axis - the set of known axis names.
	// axis_name (case-insensitive)
	Axis = "Axis"

	// AxisContent - the append-only label sequences.
	// global_storage_index (auto-increment, global across axes) -> (axis_name, label)
	//
	// Naming:
	//   label - the user-facing identifier of a position on an axis; stable forever.
	//   storage index - the 0-based rank of a label within its axis, by ascending
	//      global_storage_index. Never reassigned: labels are appended, never
	//      removed or permuted, so every recorded bounding box stays valid.
	AxisContent = "AxisContent"

	// Comm - the commit DAG. Append-only; comm_id is monotone and parent links
	// reference only pre-existing ids, so cycles are structurally impossible.
	// comm_id (auto-increment) -> (parent_comm_id nullable, message)
	Comm = "Comm"

	// Patch - patch metadata: owning commit, decompressed payload size and the
	// per-axis [min,max] bounding box in storage-index space. The columns of
	// dimensions beyond the quilt's rank are null. Rows are never updated.
	// patch_id (auto-increment) -> (comm_id, decompressed_size, dim_{0..3}_min, dim_{0..3}_max)
	Patch = "Patch"

	// PatchContent - the compressed patch blobs, 1:1 with Patch.
	// patch_id -> content (STCH blob, see the patch package)
	PatchContent = "PatchContent"

	// Tag - named pointers into the commit DAG, scoped per quilt.
	// (quilt_name, tag_name) -> comm_id
	Tag = "Tag"
)

// Tables is the full table list in creation order.
var Tables = []string{Quilt, Axis, AxisContent, Comm, Patch, PatchContent, Tag}

// All foreign keys are DEFERRABLE INITIALLY DEFERRED: inside one transaction
// parent and child rows may arrive in either order, referential integrity is
// checked at commit. The transaction boundary is the integrity boundary.
const schema = `
CREATE TABLE IF NOT EXISTS Quilt (
	quilt_name TEXT COLLATE NOCASE PRIMARY KEY,
	axes TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS Axis (
	axis_name TEXT COLLATE NOCASE PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS AxisContent (
	global_storage_index INTEGER PRIMARY KEY AUTOINCREMENT,
	axis_name TEXT COLLATE NOCASE NOT NULL
		REFERENCES Axis(axis_name) DEFERRABLE INITIALLY DEFERRED,
	label INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS AxisContentOrder
	ON AxisContent(axis_name, global_storage_index, label);
CREATE UNIQUE INDEX IF NOT EXISTS AxisContentLabel
	ON AxisContent(axis_name, label);

CREATE TABLE IF NOT EXISTS Comm (
	comm_id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_comm_id INTEGER
		REFERENCES Comm(comm_id) DEFERRABLE INITIALLY DEFERRED,
	message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS CommParent ON Comm(parent_comm_id);

CREATE TABLE IF NOT EXISTS Patch (
	patch_id INTEGER PRIMARY KEY AUTOINCREMENT,
	comm_id INTEGER NOT NULL
		REFERENCES Comm(comm_id) DEFERRABLE INITIALLY DEFERRED,
	decompressed_size INTEGER NOT NULL,
	dim_0_min INTEGER, dim_0_max INTEGER,
	dim_1_min INTEGER, dim_1_max INTEGER,
	dim_2_min INTEGER, dim_2_max INTEGER,
	dim_3_min INTEGER, dim_3_max INTEGER
);
CREATE INDEX IF NOT EXISTS PatchComm ON Patch(comm_id);

CREATE TABLE IF NOT EXISTS PatchContent (
	patch_id INTEGER PRIMARY KEY
		REFERENCES Patch(patch_id) DEFERRABLE INITIALLY DEFERRED,
	content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS Tag (
	quilt_name TEXT COLLATE NOCASE NOT NULL
		REFERENCES Quilt(quilt_name) DEFERRABLE INITIALLY DEFERRED,
	tag_name TEXT COLLATE NOCASE NOT NULL,
	comm_id INTEGER NOT NULL
		REFERENCES Comm(comm_id) DEFERRABLE INITIALLY DEFERRED,
	PRIMARY KEY (quilt_name, tag_name)
);
CREATE INDEX IF NOT EXISTS TagComm ON Tag(comm_id);
`
