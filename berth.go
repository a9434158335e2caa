package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/berthd/berth/cmd"
	"github.com/berthd/berth/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Environment:      env.Env,
		SampleRate:       0.1,
		EnableTracing:    !env.IsLocal(),
		TracesSampleRate: 0.1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	// Set the timeout to the maximum duration the program can afford to wait.
	defer sentry.Flush(2 * time.Second)

	flag.Parse()

	cmd.Execute()
}
