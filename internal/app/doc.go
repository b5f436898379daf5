// Package app wires the flow research server together and owns its
// lifecycle.
//
// Initialization order matters: the structured logger and OpenTelemetry
// providers come up first so every later component can log and emit
// metrics, then the data layer (snapshot store, fetcher, dataset
// loader), then the analysis pipeline (operations manager with its
// default stage list), and finally the HTTP router with the websocket
// hub and Prometheus endpoint mounted.
//
// The Application exposes three lifecycle methods. Start launches the
// websocket hub and the HTTP listener without blocking. Stop drains
// in-flight requests within the configured shutdown timeout, closes
// websocket clients, and flushes telemetry. Run combines both with
// SIGINT/SIGTERM handling and is what cmd/web calls.
package app
