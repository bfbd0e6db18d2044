// Package server hosts the BrainFlix API and its static assets from a single
// HTTP server.
//
// Every route shares one middleware chain: request ids, request logging,
// panic recovery, metrics, CORS and hardening headers, in that order from the
// outside in. Static files under /public/ are served from a directory on disk.
package server
