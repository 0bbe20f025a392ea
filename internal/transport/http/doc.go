// Package http exposes the agenda over HTTP: a read-only JSON API for the
// latest run, a refresh trigger, health and version probes, Prometheus
// metrics and the websocket push channel.
//
// Handlers stay thin. They parse and validate input, call the agenda
// service and render either JSON or an RFC 7807 problem via the shared
// error handler.
package http
