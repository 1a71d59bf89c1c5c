package component

import (
	"go.uber.org/zap"

	"github.com/corvus-rt/corvus/registry"
)

// providedService registers one of a factory's declared provided-interface
// sets on behalf of an instance while it is VALID, keeping the registered
// properties in sync with property changes via update_properties.
type providedService struct {
	specs []string
	reg   *registry.Registration
}

// register publishes obj under specs with a copy of props, on behalf of
// owner.
func (p *providedService) register(r *registry.Registry, owner int64, obj any, props map[string]any) error {
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	reg, err := r.Register(owner, p.specs, obj, copied, registry.KindSingleton)
	if err != nil {
		return err
	}
	p.reg = reg
	return nil
}

// updateProperties pushes a property change through to the registration, if
// currently registered.
func (p *providedService) updateProperties(props map[string]any, logger *zap.Logger) {
	if p.reg == nil {
		return
	}
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	if err := p.reg.UpdateProperties(copied); err != nil {
		logger.Warn("provided service property update failed", zap.Error(err))
	}
}

// unregister removes the registration. Errors are logged, never raised,
// per the provided-service handler's error policy.
func (p *providedService) unregister(logger *zap.Logger) {
	if p.reg == nil {
		return
	}
	if err := p.reg.Unregister(); err != nil {
		logger.Warn("provided service unregister failed", zap.Error(err))
	}
	p.reg = nil
}

// serviceID returns the reserved service.id of the current registration, or
// 0 if not currently registered.
func (p *providedService) serviceID() int64 {
	if p.reg == nil {
		return 0
	}
	return p.reg.Reference().ServiceID()
}
