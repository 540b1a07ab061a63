// Command caw queries carbon intensity data and computes SCI scores from the
// command line, printing indented JSON.
//
// Usage:
//
//	caw <emissions|best|average|forecast|sci> [flags]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const usage = `usage: caw <command> [flags]

commands:
  emissions   carbon intensity samples for locations and a time range
  best        the lowest-intensity samples for locations and a time range
  average     average carbon intensity of one location over -t/--toTime
  forecast    current forecasts resampled to --window minutes
  sci         SCI score of --resource entries over -t/--toTime

run "caw <command> -h" for the command's flags
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "caw: unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	opts, err := parseFlags(args[0], args[1:], stderr)
	if err != nil {
		return 2
	}

	logger := zerolog.New(stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	if opts.verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	env, err := newEnvironment(ctx, opts.configPath, args[0] == "sci", logger)
	if err != nil {
		fmt.Fprintf(stderr, "caw: %v\n", err)
		return 1
	}
	defer env.close()

	result, err := cmd(ctx, env, opts)
	if err != nil {
		fmt.Fprintf(stderr, "caw %s: %v\n", args[0], err)
		return 1
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "caw: failed to encode result: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
