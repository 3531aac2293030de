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
	"database/sql"

	json "github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"

	"github.com/LDSLab/stoicheia/graph"
)

// QuiltInfo describes one quilt: its name and declared axis tuple.
type QuiltInfo struct {
	Name string
	Axes []string
}

// Quilts lists every quilt in the store.
func (c *Catalog) Quilts() ([]QuiltInfo, error) {
	var out []QuiltInfo
	err := c.db.View(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT quilt_name, axes FROM Quilt ORDER BY quilt_name`)
		if err != nil {
			return pkgerrors.Wrap(err, "list quilts")
		}
		defer rows.Close()
		for rows.Next() {
			var qi QuiltInfo
			var raw string
			if err := rows.Scan(&qi.Name, &raw); err != nil {
				return pkgerrors.Wrap(err, "list quilts")
			}
			if err := json.Unmarshal([]byte(raw), &qi.Axes); err != nil {
				return pkgerrors.Wrapf(err, "quilt %q axes column", qi.Name)
			}
			out = append(out, qi)
		}
		return pkgerrors.Wrap(rows.Err(), "list quilts")
	})
	return out, err
}

// Tags lists the quilt's tags.
func (c *Catalog) Tags(quilt string) ([]graph.TagInfo, error) {
	var out []graph.TagInfo
	err := c.db.View(func(tx *sql.Tx) error {
		if _, err := quiltAxes(tx, quilt); err != nil {
			return err
		}
		var err error
		out, err = graph.Tags(tx, quilt)
		return err
	})
	return out, err
}

// CommitInfo is one entry of a tag's history.
type CommitInfo struct {
	CommID  int64
	Message string
}

// Log returns the commit history of (quilt, tag), newest first.
func (c *Catalog) Log(quilt, tag string) ([]CommitInfo, error) {
	if tag == "" {
		tag = DefaultTag
	}
	var out []CommitInfo
	err := c.db.View(func(tx *sql.Tx) error {
		head, err := graph.ResolveTag(tx, quilt, tag)
		if err != nil {
			return err
		}
		walk := graph.Ancestors(tx, head)
		for {
			commID, ok, err := walk.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			msg, err := graph.Message(tx, commID)
			if err != nil {
				return err
			}
			out = append(out, CommitInfo{CommID: commID, Message: msg})
		}
	})
	return out, err
}

// AxisLabels returns an axis's label sequence in storage-index order.
func (c *Catalog) AxisLabels(axisName string) ([]int64, error) {
	var out []int64
	err := c.db.View(func(tx *sql.Tx) error {
		var err error
		out, err = c.reg.Labels(tx, axisName)
		return err
	})
	return out, err
}

// Stats summarizes the store's contents.
type Stats struct {
	Quilts      int
	Axes        int
	Labels      int
	Commits     int
	Patches     int
	StoredBytes uint64
}

// Stat counts the store's rows and patch bytes.
func (c *Catalog) Stat() (Stats, error) {
	var s Stats
	err := c.db.View(func(tx *sql.Tx) error {
		counts := []struct {
			query string
			dst   *int
		}{
			{`SELECT COUNT(*) FROM Quilt`, &s.Quilts},
			{`SELECT COUNT(*) FROM Axis`, &s.Axes},
			{`SELECT COUNT(*) FROM AxisContent`, &s.Labels},
			{`SELECT COUNT(*) FROM Comm`, &s.Commits},
			{`SELECT COUNT(*) FROM Patch`, &s.Patches},
		}
		for _, cnt := range counts {
			if err := tx.QueryRow(cnt.query).Scan(cnt.dst); err != nil {
				return pkgerrors.Wrap(err, "stat")
			}
		}
		var blobBytes sql.NullInt64
		if err := tx.QueryRow(
			`SELECT SUM(LENGTH(content)) FROM PatchContent`).Scan(&blobBytes); err != nil {
			return pkgerrors.Wrap(err, "stat")
		}
		if blobBytes.Valid {
			s.StoredBytes = uint64(blobBytes.Int64)
		}
		return nil
	})
	return s, err
}
