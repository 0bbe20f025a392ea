// Package shared holds helpers used by tests across packages.
//
// The testutil subpackage captures slog output so tests can assert on what
// was logged and, more often, on what was not: key material and decrypted
// appointment text must never reach a log line.
//
//	logger, logs := testutil.NewLogger(t)
//	p, _ := operations.NewPipeline(operations.Options{Logger: logger, ...})
//	p.Run(ctx)
//	testutil.AssertNotLogged(t, logs, keyHex)
package shared
