// Package wire defines the message payloads and JSON/HTTP transport helpers
// shared by the Registrar and every Node in a ringvote deployment.
//
// # Overview
//
// Every inter-process call in this system — registration, election traversal,
// leader announcement, heartbeat probing, successor assignment — travels as a
// JSON body over HTTP. This package defines those shapes, except for a few
// single-purpose control calls (set-alive, exclude, claim-recovery) whose
// small request and response structs are declared inline where they are used.
//
// # Transport
//
// PostJSON and GetJSON wrap net/http with context-aware timeouts and uniform
// error handling: a non-2xx response becomes a Go error carrying the URL and
// status code, so callers can log or retry without re-parsing bodies.
//
// # Errors
//
// ElectionError carries one of the seven error kinds from the system's error
// handling design (duplicate registration, election-in-progress, missing
// successor, transport failure, election timeout, election failure, and
// stale-message). Callers that care about the distinction use errors.As
// rather than string matching.
package wire
