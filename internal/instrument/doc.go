// Package instrument bundles the optional logging, metrics and tracing collaborators
// shared by the engines, the domain and the projector.
//
// Every collaborator is optional; a nil Observer field turns the matching calls into no-ops.
package instrument
