package main

import (
	"flag"
	"io"
)

// options holds the command line settings. Everything else comes from the
// config file and CARBONAWARE_* environment variables.
type options struct {
	ConfigPath string
	HTTPAddr   string
	GRPCAddr   string
	LogLevel   string
}

func parseOptions(args []string, output io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("carbon-aware-sci", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&opts.HTTPAddr, "http-addr", "", "HTTP listen address (overrides config)")
	fs.StringVar(&opts.GRPCAddr, "grpc-addr", "", "gRPC listen address (overrides config, \"off\" disables)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level (overrides config)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}
