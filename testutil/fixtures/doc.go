// Package fixtures provides an "orders" test domain (events, state, fold, commands, handlers)
// and Given* helpers for appending its events to any eventstore.Provider.
package fixtures
