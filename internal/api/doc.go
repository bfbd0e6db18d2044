// Package api hosts the HTTP handlers behind the BrainFlix REST API.
//
// Handler validates requests, shapes responses and maps datastore errors to
// status codes while delegating persistence to the storage.Repository
// injected at construction time. Routing, CORS, request ids and request
// logging are applied by the middleware in internal/server.
package api
