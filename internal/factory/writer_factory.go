package factory

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// WriterFactory creates a storage writer from the configuration.
type WriterFactory func(cfg *config.Config) (model.Writer, error)

// registry holds the mapping of storage types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new storage type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("storage type '%s' already registered", name))
	}
	registry[name] = factory
}

// CreateWriter creates the writer selected by storage.type.
func CreateWriter(cfg *config.Config) (model.Writer, error) {
	storageType := cfg.Storage.Type
	log.Printf("Creating writer for storage type: '%s'", storageType)

	factory, ok := registry[storageType]
	if !ok {
		return nil, fmt.Errorf("unknown storage type: '%s' (registered: %v)", storageType, Registered())
	}

	writer, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating storage type '%s': %w", storageType, err)
	}
	return writer, nil
}

// Registered returns the names of all registered storage types.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
