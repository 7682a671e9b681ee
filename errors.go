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

import "errors"

var (
	// ErrKeyExists is returned by Add when the key is already present. The
	// table is left untouched.
	ErrKeyExists = errors.New("symtab: key exists")

	// ErrKeyNotFound is returned by Delete when the key is absent.
	ErrKeyNotFound = errors.New("symtab: key not found")
)
