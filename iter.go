// Copyright 2024 The Cockroach Authors
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

package symtab

// Iterator walks every entry of a Table, bucket by bucket. It is obtained
// from Table.Iter and is not restartable: once Next returns nil it keeps
// returning nil.
//
// Before an entry is returned its chain successor is recorded, so the
// caller may Delete the entry just returned without disturbing the
// traversal. Inserting keys, or deleting any entry other than the one just
// returned, while iterating has undefined results.
type Iterator[K comparable, V any] struct {
	t         *Table[K, V]
	index     int
	entry     *Entry[K, V]
	nextEntry *Entry[K, V]
	done      bool
}

// Iter returns an iterator positioned before the first entry.
func (t *Table[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{t: t, index: -1}
}

// Next returns the next entry, or nil when every entry has been visited.
func (it *Iterator[K, V]) Next() *Entry[K, V] {
	if it.done {
		return nil
	}
	for {
		if it.entry == nil {
			it.index++
			if it.index >= len(it.t.buckets) {
				it.done = true
				return nil
			}
			it.entry = it.t.buckets[it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			// Capture the successor now: the caller may free it.entry.
			it.nextEntry = it.entry.next
			return it.entry
		}
	}
}

// All calls yield sequentially for each key and value present in the
// table. If yield returns false, iteration stops. yield may Delete the key
// it was just given; any other mutation during iteration has undefined
// results.
//
//	for k, v := range t.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (t *Table[K, V]) All(yield func(key K, value V) bool) {
	it := t.Iter()
	for e := it.Next(); e != nil; e = it.Next() {
		if !yield(e.key, e.value) {
			return
		}
	}
}
