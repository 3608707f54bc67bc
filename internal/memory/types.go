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

// Package memory implements component B, the five-tier layered memory
// store of spec.md §4.B: GLOBAL/CHARACTER/PLOT/CONTEXT/STYLE items with
// lexical+vector fused search and a token-budgeted build_context.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Level is one of the five storage tiers spec.md §3 defines.
type Level string

const (
	Global    Level = "GLOBAL"
	Character Level = "CHARACTER"
	Plot      Level = "PLOT"
	Context   Level = "CONTEXT"
	Style     Level = "STYLE"
)

// Item is the shape shared by every tier (spec.md §3 "Memory item").
// Metadata carries tier-specific structured fields: a CONTEXT item's
// "order" (turn index), a STYLE item's "aspect" (tone/pacing/POV...), a
// CHARACTER item's "name", a PLOT item's position.
type Item struct {
	ID          string
	ProjectID   string
	Level       Level
	Content     string
	Metadata    map[string]any
	Embedding   []float32
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HashContent returns the stable digest used to detect embedding drift
// (spec.md §8: "a memory item's embedding... corresponds to its current
// content; hash of content stored alongside to detect drift").
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EmbeddingStale reports whether it.Embedding no longer corresponds to
// it.Content.
func (it Item) EmbeddingStale() bool {
	if len(it.Embedding) == 0 {
		return false
	}
	return it.ContentHash != HashContent(it.Content)
}

// Patch describes a partial update to an Item, applied by Update.
type Patch struct {
	Content  *string
	Metadata map[string]any // merged, not replaced
	Embedding []float32
}
