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
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LDSLab/stoicheia/kv"
	"github.com/LDSLab/stoicheia/patch"
)

// Options configures a catalog handle. The zero value (plus a Path) is the
// default deployment: synchronous=off, lz4 on the write path, fill 0.
type Options struct {
	// Path of the store file. Created if absent.
	Path string `toml:"path"`
	// Synchronous is the store's durability pragma: off, normal or full.
	Synchronous string `toml:"synchronous"`
	// Compression for newly written patches: lz4, brotli or raw. Reads
	// honor each blob's own tag, so this can change between runs.
	Compression string `toml:"compression"`
	// FillValue is written into output cells no patch covers.
	FillValue float32 `toml:"fill_value"`
	// Logger receives write-path and GC logging. Nil means no logging.
	Logger *zap.Logger `toml:"-"`
}

// LoadOptions reads Options from a TOML file.
func LoadOptions(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "read options %q", path)
	}
	var opts Options
	if err := toml.Unmarshal(raw, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "parse options %q", path)
	}
	return opts, nil
}

func (o Options) synchronous() (kv.Synchronous, error) {
	return kv.ParseSynchronous(o.Synchronous)
}

func (o Options) compression() (patch.Compression, error) {
	return patch.ParseCompression(o.Compression)
}
