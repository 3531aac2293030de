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

// Package catalog is the public facade of the engine: it owns the store
// connection and composes the axis registry, patch codec, patch store,
// commit graph and assembler into fetch/commit/untag operations. Every
// public call runs inside exactly one store transaction.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	json "github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LDSLab/stoicheia/assemble"
	"github.com/LDSLab/stoicheia/axis"
	stmath "github.com/LDSLab/stoicheia/common/math"
	"github.com/LDSLab/stoicheia/graph"
	"github.com/LDSLab/stoicheia/kv"
	"github.com/LDSLab/stoicheia/patch"
	"github.com/LDSLab/stoicheia/patchstore"
)

// DefaultTag is the tag a fetch or commit targets when none is named.
const DefaultTag = "latest"

var (
	ErrUnknownQuilt = errors.New("unknown quilt")
	// ErrNonContiguousPatch - the patch's labels map to storage indices with
	// gaps; patches must be axis-aligned dense rectangles in index space.
	ErrNonContiguousPatch = errors.New("non-contiguous patch")
	// ErrDimensionMismatch - the patch's axis count or names disagree with
	// the quilt's declared axes.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Catalog is a single-threaded handle over one store file. Open several
// handles against the same file for parallelism; the store's WAL journal
// arbitrates between them.
type Catalog struct {
	db   *kv.DB
	reg  *axis.Registry
	asm  *assemble.Assembler
	comp patch.Compression
	fill float32
	log  *zap.Logger
}

// Open opens (creating if necessary) a store at opts.Path, applies the
// idempotent schema and returns a handle.
func Open(opts Options) (*Catalog, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sync, err := opts.synchronous()
	if err != nil {
		return nil, err
	}
	comp, err := opts.compression()
	if err != nil {
		return nil, err
	}
	db, err := kv.Open(opts.Path, sync, log)
	if err != nil {
		return nil, err
	}
	reg := axis.NewRegistry()
	return &Catalog{
		db:   db,
		reg:  reg,
		asm:  assemble.New(reg, opts.FillValue, log),
		comp: comp,
		fill: opts.FillValue,
		log:  log,
	}, nil
}

// Close releases the store connection.
func (c *Catalog) Close() error { return c.db.Close() }

// quiltAxes loads a quilt's declared axis tuple.
func quiltAxes(tx *sql.Tx, name string) ([]string, error) {
	var raw string
	err := tx.QueryRow(`SELECT axes FROM Quilt WHERE quilt_name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuilt, name)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "lookup quilt %q", name)
	}
	var axes []string
	if err := json.Unmarshal([]byte(raw), &axes); err != nil {
		return nil, pkgerrors.Wrapf(err, "quilt %q axes column", name)
	}
	return axes, nil
}

// Fetch assembles the requested slice of (quilt, tag). A nil selector map or
// a missing axis key selects the whole axis. Unknown selector keys are a
// dimension mismatch.
func (c *Catalog) Fetch(quilt, tag string, selectors map[string]assemble.Selector) (*patch.Patch, error) {
	if tag == "" {
		tag = DefaultTag
	}
	var out *patch.Patch
	err := c.db.View(func(tx *sql.Tx) error {
		axes, err := quiltAxes(tx, quilt)
		if err != nil {
			return err
		}
		norm, err := normalizeSelectorKeys(axes, selectors)
		if err != nil {
			return err
		}
		out, err = c.asm.Fetch(tx, quilt, axes, tag, norm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeSelectorKeys rewrites selector keys onto the quilt's declared
// axis spelling; axis names are case-insensitive everywhere else, so the
// selector map must not be the exception.
func normalizeSelectorKeys(axes []string, selectors map[string]assemble.Selector) (map[string]assemble.Selector, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	norm := make(map[string]assemble.Selector, len(selectors))
	for key, sel := range selectors {
		found := ""
		for _, name := range axes {
			if strings.EqualFold(name, key) {
				found = name
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("%w: selector names axis %q", ErrDimensionMismatch, key)
		}
		norm[found] = sel
	}
	return norm, nil
}

// Commit writes p as a new commit on (quilt, tag) and moves the tag. The
// quilt is created on first commit, its axis tuple taken from the patch's
// axis order. Missing axis labels are appended; the patch's storage indices
// must form a dense range on every axis. All of it happens in one
// transaction; any failure rolls back.
func (c *Catalog) Commit(quilt, tag, message string, p *patch.Patch) (int64, error) {
	if tag == "" {
		tag = DefaultTag
	}
	if len(p.Data) == 0 {
		return 0, fmt.Errorf("refusing to commit an empty patch")
	}
	var commID int64
	err := c.db.Update(func(tx *sql.Tx) error {
		axes, err := quiltAxes(tx, quilt)
		if errors.Is(err, ErrUnknownQuilt) {
			axes, err = createQuilt(tx, c.reg, quilt, p.Axes)
		}
		if err != nil {
			return err
		}
		if p, err = conformAxes(p, axes); err != nil {
			return err
		}

		bounds := make([]stmath.Bounds, len(axes))
		for d, name := range axes {
			indices, err := c.reg.LabelsToIndices(tx, name, p.Labels[d], true)
			if err != nil {
				return err
			}
			if err := checkContiguous(name, indices); err != nil {
				return err
			}
			bounds[d] = stmath.BoundsOf(indices)
		}

		blob, err := patch.Encode(p, c.comp)
		if err != nil {
			return err
		}

		var parent *int64
		switch head, err := graph.ResolveTag(tx, quilt, tag); {
		case err == nil:
			parent = &head
		case !errors.Is(err, graph.ErrUnknownTag):
			return err
		}
		if commID, err = graph.NewCommit(tx, parent, message); err != nil {
			return err
		}
		patchID, err := patchstore.Insert(tx, commID, bounds, p.SizeBytes(), blob)
		if err != nil {
			return err
		}
		if err := graph.SetTag(tx, quilt, tag, commID); err != nil {
			return err
		}
		c.log.Debug("commit",
			zap.String("quilt", quilt),
			zap.String("tag", tag),
			zap.Int64("comm", commID),
			zap.Int64("patch", patchID),
			zap.Ints("shape", p.Shape()),
			zap.String("raw", datasize.ByteSize(p.SizeBytes()).HumanReadable()),
			zap.String("stored", datasize.ByteSize(len(blob)).HumanReadable()),
			zap.String("compression", c.comp.String()))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return commID, nil
}

func createQuilt(tx *sql.Tx, reg *axis.Registry, name string, axes []string) ([]string, error) {
	if len(axes) < 1 || len(axes) > patch.MaxDims {
		return nil, fmt.Errorf("%w: quilt must have 1..%d axes, got %d",
			ErrDimensionMismatch, patch.MaxDims, len(axes))
	}
	for _, a := range axes {
		if err := reg.EnsureAxis(tx, a); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(axes)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "marshal axes of quilt %q", name)
	}
	if _, err := tx.Exec(
		`INSERT INTO Quilt (quilt_name, axes) VALUES (?, ?)`, name, string(raw)); err != nil {
		return nil, pkgerrors.Wrapf(err, "create quilt %q", name)
	}
	out := make([]string, len(axes))
	copy(out, axes)
	return out, nil
}

// conformAxes brings the patch into the quilt's declared axis order and
// spelling. A patch whose axes are a permutation is transposed; a wrong set
// is a mismatch.
func conformAxes(p *patch.Patch, axes []string) (*patch.Patch, error) {
	if len(p.Axes) != len(axes) {
		return nil, fmt.Errorf("%w: patch has %d axes, quilt has %d",
			ErrDimensionMismatch, len(p.Axes), len(axes))
	}
	// match case-insensitively, but transpose by the patch's own spelling
	order := make([]string, len(axes))
	for i, want := range axes {
		found := ""
		for _, have := range p.Axes {
			if strings.EqualFold(have, want) {
				found = have
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("%w: quilt axis %q not in patch", ErrDimensionMismatch, want)
		}
		order[i] = found
	}
	q, err := p.Transposed(order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	// store the quilt's canonical axis spelling in the encoded blob
	return &patch.Patch{Axes: axes, Labels: q.Labels, Data: q.Data}, nil
}

// checkContiguous rejects index vectors with gaps or duplicates: a patch is
// a dense rectangle in storage-index space or it is not storable.
func checkContiguous(axisName string, indices []int64) error {
	b := stmath.BoundsOf(indices)
	if b.Len() != int64(len(indices)) {
		return fmt.Errorf("%w: axis %q indices span [%d,%d] but cover %d labels",
			ErrNonContiguousPatch, axisName, b.Min, b.Max, len(indices))
	}
	seen := make(map[int64]struct{}, len(indices))
	for _, ix := range indices {
		if _, dup := seen[ix]; dup {
			return fmt.Errorf("%w: axis %q index %d appears twice",
				ErrNonContiguousPatch, axisName, ix)
		}
		seen[ix] = struct{}{}
	}
	return nil
}

// Untag removes (quilt, tag) and garbage-collects commits no tag or child
// keeps reachable, together with their patches.
func (c *Catalog) Untag(quilt, tag string) error {
	if tag == "" {
		tag = DefaultTag
	}
	return c.db.Update(func(tx *sql.Tx) error {
		stats, err := graph.Untag(tx, quilt, tag)
		if err != nil {
			return err
		}
		c.log.Debug("untag",
			zap.String("quilt", quilt),
			zap.String("tag", tag),
			zap.Int("commits_deleted", stats.Commits),
			zap.Int("patches_deleted", stats.Patches))
		return nil
	})
}
