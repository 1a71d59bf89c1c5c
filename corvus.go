// Package corvus is the top-level facade: a thin re-export of framework,
// bundle, registry, component, event and filter so a host can depend on one
// import path for everyday use.
package corvus

import (
	"go.uber.org/zap"

	"github.com/corvus-rt/corvus/bundle"
	"github.com/corvus-rt/corvus/component"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/filter"
	"github.com/corvus-rt/corvus/framework"
	"github.com/corvus-rt/corvus/registry"
)

// Framework is the running system: bundle table, service registry, event
// dispatcher, and component store.
type Framework = framework.Framework

// Config is the explicit configuration a host supplies when constructing a
// Framework.
type Config = framework.Config

// BundleContext is the capability object bundle activators and component
// factories are given.
type BundleContext = bundle.Context

// Activator is the code a bundle runs at start/stop.
type Activator = bundle.Activator

// CodeLoader resolves a bundle location to a code unit.
type CodeLoader = bundle.CodeLoader

// Enumerator discovers component factory declarations within a code unit.
type Enumerator = component.Enumerator

// FactoryDeclaration describes one component factory.
type FactoryDeclaration = component.FactoryDeclaration

// Requirement describes one component dependency.
type Requirement = component.Requirement

// Callbacks is a component factory's lifecycle callback table.
type Callbacks = component.Callbacks

// ServiceReference identifies one live service registration.
type ServiceReference = registry.Reference

// ServiceRegistration is the handle a provider holds to update or withdraw
// its own registration.
type ServiceRegistration = registry.Registration

// Filter is a parsed LDAP-style property filter.
type Filter = filter.Filter

// ServiceKey pairs a Go type with the interface name it is registered
// under, for type-safe lookup.
type ServiceKey[T any] = registry.ServiceKey[T]

// Kind discriminates singleton, service-factory, and prototype-factory
// registrations.
type Kind = registry.Kind

const (
	KindSingleton        = registry.KindSingleton
	KindServiceFactory   = registry.KindServiceFactory
	KindPrototypeFactory = registry.KindPrototypeFactory
)

// BundleListener receives bundle lifecycle events.
type BundleListener = event.BundleListener

// ServiceListener receives service registry events.
type ServiceListener = event.ServiceListener

// New constructs a Framework backed by loader and enumerator, configured by
// cfg. Pass a nil cfg to accept every default.
func New(cfg *Config, loader CodeLoader, enumerator Enumerator) *Framework {
	return framework.New(cfg, loader, enumerator, nil)
}

// NewWithLogger is New, with an explicit *zap.Logger instead of the default
// no-op logger.
func NewWithLogger(cfg *Config, loader CodeLoader, enumerator Enumerator, logger *zap.Logger) *Framework {
	return framework.New(cfg, loader, enumerator, logger)
}
