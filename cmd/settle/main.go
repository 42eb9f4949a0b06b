// main.go - Entry point for the settle CLI.
// Loads a page in Chrome and reports when it has finished working: document
// ready, network idle, no visible spinner, DOM quiet.
//
// Usage: settle <wait|status|probe> <url> [--flags]
//
// Exit codes:
//
//	0 = success (page settled)
//	1 = runtime error (browser, navigation) or page not settled before timeout
//	2 = usage or configuration error
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
)

// version is set at build time via -ldflags.
var version = "0.1.0"

// errNotSettled marks a wait that ran out of time. The result has already
// been printed.
var errNotSettled = errors.New("page did not settle before timeout")

// usageError marks errors caused by bad arguments or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the main entry point, separated for testability.
// Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	return runWith(args, stdout, stderr, openChrome)
}

func runWith(args []string, stdout, stderr io.Writer, open opener) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr, open: open}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && !errors.Is(err, errNotSettled) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}
