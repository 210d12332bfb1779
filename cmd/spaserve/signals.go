package main

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals which stop the server gracefully. Both
// are emulated on Windows.
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}
