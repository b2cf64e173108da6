//go:build windows

package main

import "os"

// shutdownSignals cancel the command context. On Windows, only os.Interrupt
// (Ctrl+C) is supported; SIGTERM does not exist.
var shutdownSignals = []os.Signal{os.Interrupt}
