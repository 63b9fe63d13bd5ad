// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import "github.com/cespare/xxhash/v2"

// Quark is an interned channel or marker name, compared by integer equality
// rather than string comparison, per the string-interned-identifiers design.
type Quark uint64

// quarkTable interns strings to Quarks. It is not safe for concurrent use;
// each Trace owns one, matching the "no sharing a Trace between threads"
// resource policy.
type quarkTable struct {
	byHash map[uint64]string
}

func newQuarkTable() *quarkTable {
	return &quarkTable{byHash: make(map[uint64]string)}
}

// intern returns the Quark for s, registering it if this is the first time
// s has been seen by this table.
func (t *quarkTable) intern(s string) Quark {
	h := xxhash.Sum64String(s)
	for {
		existing, ok := t.byHash[h]
		if !ok {
			t.byHash[h] = s
			return Quark(h)
		}
		if existing == s {
			return Quark(h)
		}
		// Collision between two distinct strings under xxhash is astronomically
		// unlikely for the small, closed vocabularies (channel and marker
		// names) this table holds; if it ever happens, the first-seen string
		// keeps its hash and the later one probes for the next free key, so
		// distinct strings never share a Quark.
		h++
	}
}

func (t *quarkTable) string(q Quark) string {
	return t.byHash[uint64(q)]
}
