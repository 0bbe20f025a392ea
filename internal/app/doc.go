// Package app wires the agenda pipeline, run history, websocket hub,
// services and HTTP router into one Application and manages its lifecycle.
//
// # Lifecycle
//
//	app, err := app.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx) // blocks until ctx is cancelled, then shuts down
//
// Run serves HTTP and refreshes the agenda on cfg.Agenda.RefreshInterval.
// Shutdown stops the server first, waits (bounded by the shutdown timeout)
// for an in-flight run, then stops the hub, closes the history store and
// flushes telemetry.
//
// New does not call os.Exit; every initialization error is returned.
package app
