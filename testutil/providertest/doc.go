// Package providertest holds the contract suite every eventstore.Provider implementation must pass.
//
// Each engine calls Run from its own tests with a factory for a ready-to-use Provider.
// The suite isolates its test cases by unique stream names, so all cases may share one database.
package providertest
