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

package axis

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LDSLab/stoicheia/kv"
)

func testDB(t *testing.T) *kv.DB {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "axes.db"), kv.SynchronousOff, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExtendAssignsAppendOrder(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		indices, err := reg.ExtendAxis(tx, "day", []int64{100, 200, 300})
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 2}, indices)

		// labels already present keep their index; new ones append
		indices, err = reg.ExtendAxis(tx, "day", []int64{200, 400, 100})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 0}, indices)

		n, err := reg.AxisLen(tx, "day")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		return nil
	}))
}

func TestExtendRejectsDuplicateInOneCall(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	err := db.Update(func(tx *sql.Tx) error {
		_, err := reg.ExtendAxis(tx, "day", []int64{100, 200, 100})
		return err
	})
	assert.ErrorIs(t, err, ErrAxisConflict)
}

func TestLabelsToIndices(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		_, err := reg.ExtendAxis(tx, "itm", []int64{10, 20, 30})
		return err
	}))

	require.NoError(t, db.View(func(tx *sql.Tx) error {
		indices, err := reg.LabelsToIndices(tx, "itm", []int64{30, 10}, false)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 0}, indices)

		_, err = reg.LabelsToIndices(tx, "itm", []int64{99}, false)
		assert.ErrorIs(t, err, ErrUnknownLabel)

		_, err = reg.LabelsToIndices(tx, "nope", []int64{1}, false)
		assert.ErrorIs(t, err, ErrUnknownAxis)
		return nil
	}))

	// extend-on-miss appends instead of failing
	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		indices, err := reg.LabelsToIndices(tx, "itm", []int64{99, 20}, true)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 1}, indices)
		return nil
	}))
}

func TestIndicesToLabels(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		_, err := reg.ExtendAxis(tx, "lct", []int64{7, 8})
		return err
	}))

	require.NoError(t, db.View(func(tx *sql.Tx) error {
		labels, err := reg.IndicesToLabels(tx, "lct", []int64{1, 0})
		require.NoError(t, err)
		assert.Equal(t, []int64{8, 7}, labels)

		_, err = reg.IndicesToLabels(tx, "lct", []int64{2})
		assert.ErrorIs(t, err, ErrUnknownIndex)
		_, err = reg.IndicesToLabels(tx, "lct", []int64{-1})
		assert.ErrorIs(t, err, ErrUnknownIndex)
		return nil
	}))
}

func TestAppendOnlyAcrossRegistries(t *testing.T) {
	// a second registry over the same store sees the same assignment, and
	// appends by one registry never move labels seen by the other
	db := testDB(t)
	first := NewRegistry()
	second := NewRegistry()

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		_, err := first.ExtendAxis(tx, "day", []int64{100, 200})
		return err
	}))
	require.NoError(t, db.View(func(tx *sql.Tx) error {
		indices, err := second.LabelsToIndices(tx, "day", []int64{100, 200}, false)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1}, indices)
		return nil
	}))

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		_, err := first.ExtendAxis(tx, "day", []int64{300})
		return err
	}))
	require.NoError(t, db.View(func(tx *sql.Tx) error {
		// second's cached view is a stale prefix; the miss forces a reload
		indices, err := second.LabelsToIndices(tx, "day", []int64{300, 100}, false)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 0}, indices)
		return nil
	}))
}

func TestEnsureAxisIdempotent(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		require.NoError(t, reg.EnsureAxis(tx, "day"))
		require.NoError(t, reg.EnsureAxis(tx, "day"))
		n, err := reg.AxisLen(tx, "day")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	}))
}

func TestAxisNameCaseInsensitive(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	require.NoError(t, db.Update(func(tx *sql.Tx) error {
		_, err := reg.ExtendAxis(tx, "Day", []int64{100})
		return err
	}))
	require.NoError(t, db.View(func(tx *sql.Tx) error {
		indices, err := reg.LabelsToIndices(tx, "DAY", []int64{100}, false)
		require.NoError(t, err)
		assert.Equal(t, []int64{0}, indices)
		return nil
	}))
}
