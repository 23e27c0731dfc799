// Package domain defines the core domain types and interfaces.
//
// Funding snapshots, changesets and the collaborator contracts the core depends on
// (snapshot store, differ, upstream fetcher, connection transport) live here.
// Beyond the JSON codecs there is no implementation code, just contracts. Keeps interfaces on the consumer side
// and prevents circular imports.
package domain
