// Package generation defines the provider abstraction for external
// image-generation services: the Provider capability interface, the
// Registry that holds configured providers in a fixed failover order,
// and the error taxonomy shared by the orchestration layer. It keeps
// the application core decoupled from any specific provider API.
package generation
