// Package registry is the single source of truth for node subtypes: their
// palette metadata, configuration schemas, and action factories.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownSubtype = errors.New("node subtype not registered")
	// ErrConfigSchemaMismatch is returned when a node's configuration does
	// not satisfy the subtype's registered JSON schema. Checked at save
	// time so bad configs never reach the engine.
	ErrConfigSchemaMismatch = errors.New("node configuration does not match schema")
)

type Registry struct {
	logger          *slog.Logger
	descriptors     map[string]*models.NodeDescriptor
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		descriptors:     make(map[string]*models.NodeDescriptor),
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

// RegisterNode adds a subtype descriptor to the catalog.
func (r *Registry) RegisterNode(descriptor *models.NodeDescriptor) {
	r.descriptors[descriptor.Subtype] = descriptor
}

// RegisterAction binds an action factory to its subtype.
func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

// Describe returns the descriptor for a subtype.
func (r *Registry) Describe(subtype string) (*models.NodeDescriptor, error) {
	descriptor, ok := r.descriptors[subtype]
	if !ok {
		return nil, fmt.Errorf("subtype %q: %w", subtype, ErrUnknownSubtype)
	}

	return descriptor, nil
}

// ListByKind returns the descriptors of one category, ordered by subtype so
// the palette is stable across restarts.
func (r *Registry) ListByKind(kind models.NodeKind) []*models.NodeDescriptor {
	descriptors := make([]*models.NodeDescriptor, 0)

	for _, descriptor := range r.descriptors {
		if descriptor.Kind == kind {
			descriptors = append(descriptors, descriptor)
		}
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Subtype < descriptors[j].Subtype
	})

	return descriptors
}

// ValidateConfig checks a node's configuration against the subtype's
// registered JSON schema.
func (r *Registry) ValidateConfig(subtype string, config map[string]any) error {
	descriptor, err := r.Describe(subtype)
	if err != nil {
		return err
	}

	if descriptor.ConfigSchema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(descriptor.ConfigSchema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation for %q: %w", subtype, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("%w: %s: %s", ErrConfigSchemaMismatch, subtype, strings.Join(details, "; "))
	}

	return nil
}

// CreateAction instantiates the action bound to an action subtype.
func (r *Registry) CreateAction(subtype string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[subtype]
	if !ok {
		return nil, fmt.Errorf("action %q: %w", subtype, ErrUnknownSubtype)
	}

	return factory.Create(config)
}

// HealthCheck reports whether the registry carries a usable catalog.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.descriptors) == 0 {
		return "Registry has no registered node types", false
	}

	return fmt.Sprintf("Registry is healthy (%d node types)", len(r.descriptors)), true
}
