// Package registry manages the lifecycle of the simulation's services
// when several of them run inside one launcher process.
package registry

import (
	"errors"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/rs/zerolog"
)

// Service is anything the launcher can start and stop.
type Service interface {
	Start() error
	Stop() error
}

// Registry starts services in registration order and stops them in
// reverse.
type Registry struct {
	services *orderedmap.OrderedMap[string, Service]
	logger   zerolog.Logger
}

// New initializes and returns a new Registry instance.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		services: orderedmap.NewOrderedMap[string, Service](),
		logger:   logger,
	}
}

// Register adds a service to the registry, keeping registration order.
func (r *Registry) Register(name string, svc Service) {
	if _, exists := r.services.Get(name); exists {
		r.logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	r.services.Set(name, svc)
	r.logger.Info().Msgf("Registered service: %s", name)
}

// StartAll starts all registered services in order. If a service fails to
// start, the already started ones are stopped before returning.
func (r *Registry) StartAll() error {
	var started []string

	for el := r.services.Front(); el != nil; el = el.Next() {
		r.logger.Info().Msgf("Starting service: %s", el.Key)
		if err := el.Value.Start(); err != nil {
			r.logger.Error().Err(err).Msgf("Failed to start service: %s", el.Key)
			for i := len(started) - 1; i >= 0; i-- {
				if svc, ok := r.services.Get(started[i]); ok {
					_ = svc.Stop()
				}
			}
			return err
		}
		started = append(started, el.Key)
	}

	return nil
}

// StopAll stops all services in reverse registration order, collecting
// any stop failures.
func (r *Registry) StopAll() error {
	var stopErrors []error

	for el := r.services.Back(); el != nil; el = el.Prev() {
		r.logger.Info().Msgf("Stopping service: %s", el.Key)
		if err := el.Value.Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", el.Key, err))
		}
	}

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			r.logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}
