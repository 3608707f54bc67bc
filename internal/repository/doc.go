// Copyright 2025 Kadir Pekel
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

// Package repository provides the storage collaborator of spec.md §6: the
// Memory, Project, Chapter, and Session contracts, plus a reference
// in-process implementation of each. Persistence backing (an ORM, SQL
// migrations, a managed cache) is explicitly out of scope (spec.md
// Non-goals): the in-memory stores here exist so the rest of the module —
// and cmd/storyagent — have something runnable to sit on top of, in the
// same spirit as hector's pkg/memory/mocks.go in-memory fakes.
//
// Repositories bundles the four stores behind one value and adds
// WithTransaction, the single point where spec.md §5's "character upsert,
// plot append, and a chapter record that belong to the same turn commit
// atomically" requirement is enforced.
package repository
