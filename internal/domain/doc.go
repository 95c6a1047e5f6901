// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (identity.go, envelope.go, session.go,
// entity.go, errors.go) with shared types and cross-cutting interfaces. No implementation
// code beyond small value helpers. Keeps registry, hub, dispatch and binding free of
// circular imports.
package domain
