// Package testutil provides fakes shared by executor, CLI and harness
// tests: a launcher that simulates the compiler against an in-memory
// filesystem and a delegate that records lifecycle events.
package testutil
