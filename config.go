// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rastercache

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// EnvCacheMax is the environment variable read by Default() and by caches
// created without a CacheMax option. It accepts the same syntax as ParseCacheSize.
const EnvCacheMax = "RASTERCACHE_CACHEMAX"

const (
	defaultPercent    = 5
	fallbackCacheSize = 64 << 20
)

// CacheSize is a cache budget, either an absolute number of bytes or a
// percentage of the physical memory. It is resolved once into a byte count
// when handed to a Cache.
type CacheSize struct {
	bytes     int64
	percent   float64
	isPercent bool
}

// Bytes returns an absolute CacheSize
func Bytes(n int64) CacheSize {
	return CacheSize{bytes: n}
}

// PercentOfRAM returns a CacheSize relative to the physical memory
func PercentOfRAM(p float64) CacheSize {
	return CacheSize{percent: p, isPercent: true}
}

func (s CacheSize) String() string {
	if s.isPercent {
		return strconv.FormatFloat(s.percent, 'f', -1, 64) + "%"
	}
	return strconv.FormatInt(s.bytes, 10)
}

// Resolve returns the budget in bytes
func (s CacheSize) Resolve() (int64, error) {
	if !s.isPercent {
		if s.bytes < 0 {
			return 0, &ConfigError{Value: s.String(), Err: errors.New("negative size")}
		}
		return s.bytes, nil
	}
	if math.IsNaN(s.percent) || s.percent <= 0 || s.percent > 100 {
		return 0, &ConfigError{Value: s.String(), Err: errors.New("percentage must be in (0,100]")}
	}
	ram := physicalMemory()
	if ram == 0 {
		return 0, &ConfigError{Value: s.String(), Err: errors.New("physical memory size unavailable")}
	}
	return int64(float64(ram) * s.percent / 100), nil
}

// ParseCacheSize parses a budget expressed as "<N>" bytes, "<N>%" of the
// physical memory, or "<N><unit>" with unit one of k,m,g,t (optionally
// followed by b or ib, all binary multiples), e.g. "800", "20%", "512MB".
func ParseCacheSize(s string) (CacheSize, error) {
	const (
		BYTE = 1 << (10 * iota)
		KILOBYTE
		MEGABYTE
		GIGABYTE
		TERABYTE
	)
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 0 {
		return CacheSize{}, &ConfigError{Value: orig, Err: errors.New("empty value")}
	}
	if strings.HasSuffix(s, "%") {
		p, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
		if err != nil {
			return CacheSize{}, &ConfigError{Value: orig, Err: err}
		}
		cs := PercentOfRAM(p)
		if math.IsNaN(p) || p <= 0 || p > 100 {
			return CacheSize{}, &ConfigError{Value: orig, Err: errors.New("percentage must be in (0,100]")}
		}
		return cs, nil
	}

	i := strings.IndexFunc(s, unicode.IsLetter)
	if i == -1 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return CacheSize{}, &ConfigError{Value: orig, Err: err}
		}
		if n < 0 {
			return CacheSize{}, &ConfigError{Value: orig, Err: errors.New("negative size")}
		}
		return Bytes(n), nil
	}

	bytesString, multiple := strings.TrimSpace(s[:i]), s[i:]
	bytes, err := strconv.ParseFloat(bytesString, 64)
	if err != nil {
		return CacheSize{}, &ConfigError{Value: orig, Err: err}
	}
	if bytes < 0 || math.IsNaN(bytes) {
		return CacheSize{}, &ConfigError{Value: orig, Err: errors.New("negative size")}
	}
	var mult float64
	switch multiple {
	case "T", "TB", "TIB":
		mult = TERABYTE
	case "G", "GB", "GIB":
		mult = GIGABYTE
	case "M", "MB", "MIB":
		mult = MEGABYTE
	case "K", "KB", "KIB":
		mult = KILOBYTE
	case "B":
		mult = BYTE
	default:
		return CacheSize{}, &ConfigError{Value: orig, Err: fmt.Errorf("unknown unit %q", multiple)}
	}
	return Bytes(int64(bytes * mult)), nil
}

// CacheSizeFromEnv returns the budget configured through EnvCacheMax. ok is
// false when the variable is unset or empty.
func CacheSizeFromEnv() (cs CacheSize, ok bool, err error) {
	v := strings.TrimSpace(os.Getenv(EnvCacheMax))
	if v == "" {
		return CacheSize{}, false, nil
	}
	cs, err = ParseCacheSize(v)
	if err != nil {
		return CacheSize{}, false, fmt.Errorf("%s: %w", EnvCacheMax, err)
	}
	return cs, true, nil
}

// defaultBudget is the budget used when none is configured: EnvCacheMax if
// set, else 5% of the physical memory, else 64MiB.
func defaultBudget() (int64, error) {
	cs, ok, err := CacheSizeFromEnv()
	if err != nil {
		return 0, err
	}
	if ok {
		return cs.Resolve()
	}
	if n, err := PercentOfRAM(defaultPercent).Resolve(); err == nil {
		return n, nil
	}
	return fallbackCacheSize, nil
}
