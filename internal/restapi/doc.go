// Package restapi speaks the SP platform's job-request REST interface.
//
// It provides two pieces used by the spjobs poller:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and a response size cap
//   - the JSON:API document codec for creating job requests and reading their status
//
// Callers outside this module configure everything through the spjobs package.
package restapi
