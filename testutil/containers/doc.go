// Package containers starts PostgreSQL and MongoDB test containers with testcontainers-go.
//
// Tests using them are skipped with -short and when no container runtime is reachable.
package containers
