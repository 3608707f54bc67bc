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

// Package session implements spec.md §3's Session data model and §5's
// per-session_id turn serialization: an append-only, bounded turn history
// with a derived-settings snapshot attached.
package session

import (
	"time"

	"github.com/yantianqi1/write-agent/internal/settings"
)

// Role distinguishes the two turn authors spec.md §3 allows.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a Session's append-only history.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Session is spec.md §3's Session value: an ordered, append-only turn list
// plus a snapshot of the derived settings bundle.
type Session struct {
	ID              string
	ProjectID       string
	Turns           []Turn
	DerivedSettings settings.Bundle
	// EvictedCount counts turns summarized out of Turns over this
	// session's lifetime, used as the stable CONTEXT "order" index for
	// eviction summaries so it never collides with a later eviction.
	EvictedCount int
	UpdatedAt    time.Time
}

// DefaultTurnCap is spec.md §3's "newest N turns (configurable, default
// 50) form the working window".
const DefaultTurnCap = 50
