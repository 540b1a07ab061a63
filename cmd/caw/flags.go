package main

import (
	"flag"
	"io"
	"strings"
)

// listFlag accumulates repeated and comma separated values.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// resourceFlag accumulates name[:processor] entries. Processor names may
// contain ':' so only the first one separates.
type resourceFlag []resourceSpec

type resourceSpec struct {
	Name      string
	Processor string
}

func (r *resourceFlag) String() string {
	parts := make([]string, len(*r))
	for i, s := range *r {
		parts[i] = s.Name
		if s.Processor != "" {
			parts[i] += ":" + s.Processor
		}
	}
	return strings.Join(parts, ",")
}

func (r *resourceFlag) Set(v string) error {
	name, processor, _ := strings.Cut(v, ":")
	*r = append(*r, resourceSpec{Name: strings.TrimSpace(name), Processor: strings.TrimSpace(processor)})
	return nil
}

type cliOptions struct {
	configPath     string
	locations      listFlag
	start          string
	end            string
	windowMinutes  int
	resources      resourceFlag
	functionalUnit int64
	verbose        bool
}

func parseFlags(command string, args []string, output io.Writer) (*cliOptions, error) {
	opts := &cliOptions{}

	fs := flag.NewFlagSet("caw "+command, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	fs.Var(&opts.locations, "l", "Location (repeatable, comma separated)")
	fs.Var(&opts.locations, "location", "Location (repeatable, comma separated)")
	fs.StringVar(&opts.start, "t", "", "Start time (RFC 3339)")
	fs.StringVar(&opts.start, "time", "", "Start time (RFC 3339)")
	fs.StringVar(&opts.end, "toTime", "", "End time (RFC 3339)")
	fs.IntVar(&opts.windowMinutes, "window", 0, "Forecast window size in minutes")
	fs.Var(&opts.resources, "resource", "Compute resource as name[:processor] (repeatable)")
	fs.Int64Var(&opts.functionalUnit, "functional-unit", 0, "SCI functional unit (default 1)")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}
