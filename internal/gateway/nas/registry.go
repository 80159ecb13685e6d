package nas

import (
	"strings"

	"github.com/smallbiznis/abonix/internal/gateway/domain"
)

type Registry struct {
	factories map[string]domain.ManagerFactory
}

func NewRegistry(factories ...domain.ManagerFactory) *Registry {
	registry := &Registry{factories: map[string]domain.ManagerFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		nasType := strings.ToLower(strings.TrimSpace(factory.Type()))
		if nasType == "" {
			continue
		}
		registry.factories[nasType] = factory
	}
	return registry
}

func (r *Registry) NewManager(nas domain.NAS) (domain.Manager, error) {
	if r == nil {
		return nil, domain.ErrUnknownNASType
	}
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(nas.NASType))]
	if !ok {
		return nil, domain.ErrUnknownNASType
	}
	return factory.New(nas), nil
}
