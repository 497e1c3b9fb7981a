// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"

	"github.com/cardinalhq/spillway/pipeline/rowcodec"
	"github.com/cardinalhq/spillway/spill"
	"github.com/cardinalhq/spillway/spill/spillmgr"
)

// Manager builds a spill manager from the configuration.
func (c *Config) Manager() (*spillmgr.Manager, error) {
	codec, err := c.codec()
	if err != nil {
		return nil, err
	}
	opts := spill.Options{
		Codec:           codec,
		WriteBufferSize: c.Spill.WriteBufferSize,
	}
	return spillmgr.NewManager(c.Spill.Roots, c.Spill.MaxUsedFraction, opts, nil), nil
}

func (c *Config) codec() (rowcodec.PageCodec, error) {
	switch c.Spill.Codec {
	case "", "binary":
		return rowcodec.NewBinaryCodec(), nil
	case "cbor":
		return rowcodec.NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown spill codec %q", c.Spill.Codec)
	}
}
