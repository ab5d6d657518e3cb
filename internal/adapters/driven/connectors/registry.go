// Package connectors hosts the connector registry and the shipped connector
// implementations.
package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Ensure Registry implements the ConnectorRegistry interface.
var _ driven.ConnectorRegistry = (*Registry)(nil)

// Registry resolves connectors by type name.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]driven.Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]driven.Connector{}}
}

// Register adds a connector. A later registration for the same type wins.
func (r *Registry) Register(connector driven.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[connector.Type()] = connector
}

// Get resolves a connector by type name.
func (r *Registry) Get(connectorType string) (driven.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connector, ok := r.connectors[connectorType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrConnectorNotFound, connectorType)
	}
	return connector, nil
}

// Types returns the registered type names sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
