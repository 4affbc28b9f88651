// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats accumulates classified trial outcomes into a frequency
// table and writes the run report.
package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Key
// =============================================================================

// Key is a frequency-table key: a real-solution count, or in comparison mode
// a pair of counts under two criteria.
type Key struct {
	Real      int
	Secondary int
	Pair      bool
}

// Single returns the key for a plain real-solution count.
func Single(n int) Key { return Key{Real: n} }

// PairOf returns the key for a comparison-mode count pair.
func PairOf(n, secondary int) Key { return Key{Real: n, Secondary: secondary, Pair: true} }

// String renders the key as it appears in reports: "2" or "(2, 1)".
func (k Key) String() string {
	if k.Pair {
		return "(" + strconv.Itoa(k.Real) + ", " + strconv.Itoa(k.Secondary) + ")"
	}
	return strconv.Itoa(k.Real)
}

// Less orders keys ascending, lexicographically for pairs. Single keys sort
// before pairs with the same real count.
func (k Key) Less(o Key) bool {
	if k.Real != o.Real {
		return k.Real < o.Real
	}
	if k.Pair != o.Pair {
		return !k.Pair
	}
	return k.Secondary < o.Secondary
}

// ParseKey reads a key written by String.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return Key{}, fmt.Errorf("unterminated pair key %q", s)
		}
		parts := strings.Split(s[1:len(s)-1], ",")
		if len(parts) != 2 {
			return Key{}, fmt.Errorf("pair key %q must have two counts", s)
		}
		a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return Key{}, fmt.Errorf("pair key %q: %w", s, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return Key{}, fmt.Errorf("pair key %q: %w", s, err)
		}
		return PairOf(a, b), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Key{}, fmt.Errorf("key %q: %w", s, err)
	}
	return Single(n), nil
}

// =============================================================================
// Table
// =============================================================================

// Entry is one row of a frequency table.
type Entry struct {
	Key   Key
	Count int
}

// Table maps outcome keys to occurrence counts.
type Table map[Key]int

// Sorted returns the entries ordered by ascending key.
func (t Table) Sorted() []Entry {
	out := make([]Entry, 0, len(t))
	for k, c := range t {
		out = append(out, Entry{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// Sum returns the total count across all keys.
func (t Table) Sum() int {
	total := 0
	for _, c := range t {
		total += c
	}
	return total
}

// Merge sums tables into a new table.
func Merge(tables ...Table) Table {
	out := make(Table)
	for _, t := range tables {
		for k, c := range t {
			out[k] += c
		}
	}
	return out
}
