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

package graph

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stmath "github.com/LDSLab/stoicheia/common/math"
	"github.com/LDSLab/stoicheia/kv"
	"github.com/LDSLab/stoicheia/patchstore"
)

func testDB(t *testing.T) *kv.DB {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "graph.db"), kv.SynchronousOff, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mkQuilt(t *testing.T, tx *sql.Tx, name string) {
	t.Helper()
	_, err := tx.Exec(`INSERT INTO Quilt (quilt_name, axes) VALUES (?, '["x"]')`, name)
	require.NoError(t, err)
}

// chain commits n nodes and returns their ids, oldest first.
func chain(t *testing.T, tx *sql.Tx, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	var parent *int64
	for i := range ids {
		id, err := NewCommit(tx, parent, "")
		require.NoError(t, err)
		ids[i] = id
		parent = &ids[i]
	}
	return ids
}

func TestAncestorsChildToRoot(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		ids := chain(t, tx, 3)

		var got []int64
		walk := Ancestors(tx, ids[2])
		for {
			id, ok, err := walk.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, id)
		}
		assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, got)
		return nil
	}))
}

func TestCommitIDsAreMonotone(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		ids := chain(t, tx, 4)
		for i := 1; i < len(ids); i++ {
			assert.Greater(t, ids[i], ids[i-1])
		}
		return nil
	}))
}

func TestTagUpsertAndResolve(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		mkQuilt(t, tx, "sales")
		ids := chain(t, tx, 2)

		require.NoError(t, SetTag(tx, "sales", "latest", ids[0]))
		require.NoError(t, SetTag(tx, "sales", "latest", ids[1]))

		got, err := ResolveTag(tx, "sales", "latest")
		require.NoError(t, err)
		assert.Equal(t, ids[1], got)

		// tag names are case-insensitive; exactly one row survives the upsert
		got, err = ResolveTag(tx, "sales", "LATEST")
		require.NoError(t, err)
		assert.Equal(t, ids[1], got)
		tags, err := Tags(tx, "sales")
		require.NoError(t, err)
		assert.Len(t, tags, 1)

		_, err = ResolveTag(tx, "sales", "nope")
		assert.ErrorIs(t, err, ErrUnknownTag)
		return nil
	}))
}

func commitCount(t *testing.T, tx *sql.Tx) int {
	t.Helper()
	var n int
	require.NoError(t, tx.QueryRow(`SELECT COUNT(*) FROM Comm`).Scan(&n))
	return n
}

func TestUntagSweepsWholeChain(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		mkQuilt(t, tx, "sales")
		ids := chain(t, tx, 3)
		for _, id := range ids {
			_, err := patchstore.Insert(tx, id, []stmath.Bounds{{Min: 0, Max: 0}}, 4, []byte{1})
			require.NoError(t, err)
		}
		require.NoError(t, SetTag(tx, "sales", "latest", ids[2]))

		stats, err := Untag(tx, "sales", "latest")
		require.NoError(t, err)
		assert.Equal(t, GCStats{Commits: 3, Patches: 3}, stats)
		assert.Equal(t, 0, commitCount(t, tx))

		_, err = ResolveTag(tx, "sales", "latest")
		assert.ErrorIs(t, err, ErrUnknownTag)
		return nil
	}))
}

func TestUntagStopsAtTaggedAncestor(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		mkQuilt(t, tx, "sales")
		ids := chain(t, tx, 3)
		for _, id := range ids {
			_, err := patchstore.Insert(tx, id, []stmath.Bounds{{Min: 0, Max: 0}}, 4, []byte{1})
			require.NoError(t, err)
		}
		require.NoError(t, SetTag(tx, "sales", "latest", ids[2]))
		require.NoError(t, SetTag(tx, "sales", "backup", ids[0]))

		stats, err := Untag(tx, "sales", "latest")
		require.NoError(t, err)
		assert.Equal(t, GCStats{Commits: 2, Patches: 2}, stats)

		// the backup tag still resolves and its commit kept its patch
		got, err := ResolveTag(tx, "sales", "backup")
		require.NoError(t, err)
		assert.Equal(t, ids[0], got)
		metas, err := patchstore.ByCommit(tx, ids[0])
		require.NoError(t, err)
		assert.Len(t, metas, 1)
		return nil
	}))
}

func TestUntagStopsAtSharedAncestor(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		mkQuilt(t, tx, "sales")
		// root <- a (tagged main), root <- b (tagged side): removing side
		// must keep root, which still has a child
		root, err := NewCommit(tx, nil, "root")
		require.NoError(t, err)
		a, err := NewCommit(tx, &root, "a")
		require.NoError(t, err)
		b, err := NewCommit(tx, &root, "b")
		require.NoError(t, err)
		require.NoError(t, SetTag(tx, "sales", "main", a))
		require.NoError(t, SetTag(tx, "sales", "side", b))

		stats, err := Untag(tx, "sales", "side")
		require.NoError(t, err)
		assert.Equal(t, GCStats{Commits: 1}, stats)
		assert.Equal(t, 2, commitCount(t, tx))
		return nil
	}))
}

func TestUntagOnStillTaggedCommitDeletesNothing(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		mkQuilt(t, tx, "sales")
		ids := chain(t, tx, 1)
		require.NoError(t, SetTag(tx, "sales", "latest", ids[0]))
		require.NoError(t, SetTag(tx, "sales", "keep", ids[0]))

		stats, err := Untag(tx, "sales", "latest")
		require.NoError(t, err)
		assert.Equal(t, GCStats{}, stats)
		assert.Equal(t, 1, commitCount(t, tx))
		return nil
	}))
}
