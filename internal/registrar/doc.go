// Package registrar is the singleton membership and ring-assembly service.
// It admits registrations, gates them during elections, and rebuilds the
// ring topology in ascending-UID order whenever a node registers or asks for
// a rebuild.
//
// A RebuildRing call is atomic under the Registrar's single mutex and bumps
// a ring epoch that travels with every election and leader message, so a
// node can recognize and drop a message forwarded against a topology that no
// longer exists.
package registrar
