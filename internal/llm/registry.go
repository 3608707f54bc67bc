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

package llm

import (
	"fmt"

	"github.com/yantianqi1/write-agent/internal/registry"
)

// Registry holds named Provider instances, letting the conversational agent
// and content generator address a provider by configuration name rather
// than holding a concrete type.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// RegisterProvider registers provider under name.
func (r *Registry) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return r.Register(name, provider)
}

// GetProvider returns the provider registered under name.
func (r *Registry) GetProvider(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}
	return p, nil
}
