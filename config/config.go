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
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/spillway/spill"
	"github.com/cardinalhq/spillway/spill/spillmgr"
)

// Config aggregates configuration for a host embedding the spill manager.
type Config struct {
	Spill SpillConfig `mapstructure:"spill"`
}

// SpillConfig configures spill roots and session behavior.
type SpillConfig struct {
	// Roots are the directories spill sessions are opened under.
	Roots []string `mapstructure:"roots"`

	// MaxUsedFraction is the disk utilization above which a root is skipped.
	MaxUsedFraction float64 `mapstructure:"max_used_fraction"`

	// WriteBufferSize is the buffered-I/O size for spill file reads/writes.
	WriteBufferSize int `mapstructure:"write_buffer_size"`

	// Codec selects the page codec: "binary" (process-local, default) or
	// "cbor" (cross-process readable).
	Codec string `mapstructure:"codec"`
}

// DefaultConfig returns the defaults applied before file/env overrides.
func DefaultConfig() *Config {
	return &Config{
		Spill: SpillConfig{
			Roots:           []string{os.TempDir()},
			MaxUsedFraction: spillmgr.DefaultMaxUsedFraction,
			WriteBufferSize: spill.DefaultWriteBufferSize,
			Codec:           "binary",
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "SPILLWAY" and the dot character in
// keys is replaced by an underscore. For example, "spill.roots" becomes
// "SPILLWAY_SPILL_ROOTS".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("SPILLWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if r := v.GetString("spill.roots"); r != "" {
		cfg.Spill.Roots = strings.Split(r, ",")
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
