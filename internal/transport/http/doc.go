// Package http provides the HTTP transport layer: chi routes, request
// binding, and JSON error responses for the research API.
package http
