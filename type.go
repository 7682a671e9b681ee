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

import (
	"hash/maphash"
	"reflect"
	"strings"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Type customizes how a Table treats its keys and values. Every field is
// optional. Hash does not receive the table's privdata; the other callbacks
// do.
//
// When KeyDup is set the table stores the duplicate returned by KeyDup
// rather than the caller's key, and owns it. ValDup is only applied when
// Replace overwrites an existing value. The destructors run exactly once for
// each key and value the table drops, whether by Delete, by Replace
// (value only), by Clear or by Close.
type Type[K comparable, V any] struct {
	Hash          func(key K) uintptr
	KeyDup        func(privdata any, key K) K
	ValDup        func(privdata any, value V) V
	KeyCompare    func(privdata any, a, b K) bool
	KeyDestructor func(privdata any, key K)
	ValDestructor func(privdata any, value V)
}

// StringType returns a Type for string keys using StringHash. Keys are
// cloned on insertion so a table never pins the buffer a key was sliced
// from (typically the script source).
func StringType[V any]() *Type[string, V] {
	return &Type[string, V]{
		Hash: StringHash,
		KeyDup: func(_ any, key string) string {
			return strings.Clone(key)
		},
	}
}

// IntType returns a Type for integer keys using IntHash.
func IntType[K constraints.Integer, V any]() *Type[K, V] {
	return &Type[K, V]{Hash: IntHash[K]}
}

// StringHash is the classic interpreter string hash, h = h*9 + c.
func StringHash(s string) uintptr {
	var h uintptr
	for i := 0; i < len(s); i++ {
		h += (h << 3) + uintptr(s[i])
	}
	return h
}

// IntHash mixes the bits of an integer key (Thomas Wang's 64-bit mix) so
// that keys differing only in their high bits spread across buckets.
func IntHash[K constraints.Integer](key K) uintptr {
	h := uint64(key)
	h = ^h + (h << 21)
	h ^= h >> 24
	h = (h + (h << 3)) + (h << 8)
	h ^= h >> 14
	h = (h + (h << 2)) + (h << 4)
	h ^= h >> 28
	h += h << 31
	return uintptr(h)
}

// defaultHash returns the hash used when a Type has no Hash. Integer kinds
// hash to themselves. Every other key, pointers included, is hashed by
// maphash.Comparable under seed, which for pointers hashes the address.
func defaultHash[K comparable](seed maphash.Seed) func(key K) uintptr {
	switch reflect.TypeFor[K]().Kind() {
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64, reflect.Uintptr:
		if unsafe.Sizeof(*new(K)) == 8 {
			return func(key K) uintptr {
				return uintptr(*(*uint64)(unsafe.Pointer(&key)))
			}
		}
		return func(key K) uintptr {
			return uintptr(*(*uint32)(unsafe.Pointer(&key)))
		}
	case reflect.Int32, reflect.Uint32:
		return func(key K) uintptr {
			return uintptr(*(*uint32)(unsafe.Pointer(&key)))
		}
	case reflect.Int16, reflect.Uint16:
		return func(key K) uintptr {
			return uintptr(*(*uint16)(unsafe.Pointer(&key)))
		}
	case reflect.Int8, reflect.Uint8:
		return func(key K) uintptr {
			return uintptr(*(*uint8)(unsafe.Pointer(&key)))
		}
	}
	return func(key K) uintptr {
		return uintptr(maphash.Comparable(seed, key))
	}
}
