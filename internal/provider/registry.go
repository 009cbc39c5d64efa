// Copyright (c) 2026 John Earle
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

package provider

import "github.com/leasehub/ingestion/internal/models"

// Registry selects the provider for an inbound message.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry over providers in the given order.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Default returns a registry of all built-in vendors.
func Default() *Registry {
	return NewRegistry(builtins()...)
}

// SelectProvider returns the first provider that claims msg, or nil.
func (r *Registry) SelectProvider(msg *models.InboundMessage) Provider {
	if msg == nil {
		return nil
	}
	for _, p := range r.providers {
		if p.ShouldProcessEmailBody(msg) {
			return p
		}
	}
	return nil
}

// IsOnILSDomain reports whether any provider recognizes the sender's domain,
// whether or not it would parse the body.
func (r *Registry) IsOnILSDomain(msg *models.InboundMessage) bool {
	if msg == nil {
		return false
	}
	for _, p := range r.providers {
		if p.BelongsToILSDomain(msg) {
			return true
		}
	}
	return false
}

// Parse selects a provider and extracts the lead. ok is false when no
// provider claims the message.
func (r *Registry) Parse(msg *models.InboundMessage) (lead models.ParsedLeadInformation, name string, ok bool) {
	p := r.SelectProvider(msg)
	if p == nil {
		return models.ParsedLeadInformation{}, "", false
	}
	return p.ParseEmailInformation(msg), p.Name(), true
}

// Names lists provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Providers returns the registered providers in order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}
