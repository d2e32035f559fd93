package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const defaultConfigPath = "rtinfer.toml"

type cliOptions struct {
	configPath        string
	queries           stringList
	receiver          string
	all               bool
	format            string
	out               string
	watch             bool
	history           bool
	runs              int
	runDiagnostics    string
	failOnDiagnostics bool
	verbose           bool
	version           bool
	args              []string
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("rtinfer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.Var(&opts.queries, "query", "Query to answer, e.g. 'RTI2.multiply(SmallInt,Float)' (repeatable)")
	fs.StringVar(&opts.receiver, "receiver", "", "Receiver type expression for a single -query")
	fs.BoolVar(&opts.all, "all", false, "Infer every method callable without arguments")
	fs.StringVar(&opts.format, "format", "", "Report format: text, json, yaml or sarif (overrides [output].format)")
	fs.StringVar(&opts.out, "out", "", "Write the report to this path instead of stdout")
	fs.BoolVar(&opts.watch, "watch", false, "Re-run queries whenever Ruby sources change")
	fs.BoolVar(&opts.history, "history", false, "Persist runs to the history database")
	fs.IntVar(&opts.runs, "runs", 0, "List the N most recent stored runs and exit (requires --history)")
	fs.StringVar(&opts.runDiagnostics, "run-diagnostics", "", "Print the diagnostics of a stored run and exit (requires --history)")
	fs.BoolVar(&opts.failOnDiagnostics, "fail-on-diagnostics", false, "Exit with status 2 when any diagnostic is reported")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	opts.args = fs.Args()
	return opts, nil
}

// historyMode reports whether opts only reads stored runs.
func (o cliOptions) historyMode() bool {
	return o.runs > 0 || o.runDiagnostics != ""
}

func (o cliOptions) validate() error {
	if o.receiver != "" && len(o.queries) != 1 {
		return fmt.Errorf("--receiver applies to exactly one --query")
	}
	if o.historyMode() && !o.history {
		return fmt.Errorf("--runs and --run-diagnostics require --history")
	}
	if o.runs < 0 {
		return fmt.Errorf("--runs must be positive")
	}
	if o.watch && o.historyMode() {
		return fmt.Errorf("--watch cannot be combined with --runs or --run-diagnostics")
	}
	return nil
}
