// Command dvstmbench drives a dvstm Region with a configurable mix of
// read-only and read/write transactions against its first segment and
// reports commit/abort counts plus latency percentiles of committed
// transactions. It issues no alloc or free operations.
//
// Usage:
//
//	dvstmbench [flags]
//	dvstmbench --config bench.jsonc
//
// The config file, if given, is JSONC (JSON with comments and trailing
// commas) standardized with hujson before parsing; flags override
// whatever it sets.
package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dvstmbench:", err)
		os.Exit(1)
	}
	if cfg.help {
		printUsage()
		return
	}

	report, err := run(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dvstmbench:", err)
		os.Exit(1)
	}
	report.Print(os.Stdout)
}

func printUsage() {
	fmt.Print(`dvstmbench - workload generator and latency profiler for a dvstm Region

USAGE:
    dvstmbench [flags]

FLAGS:
    --config string      path to a JSONC workload config (flags below override it)
    --size uint           first segment size in bytes (default 4096)
    --align uint           word alignment in bytes (default 8)
    --workers int         number of concurrent worker goroutines (default 8)
    --duration duration   how long to drive the workload (default 2s)
    --write-ratio float   fraction of transactions that are read/write (default 0.5)
    --help                show this message

EXAMPLES:
    dvstmbench --workers 32 --duration 5s --write-ratio 0.3
    dvstmbench --config bench.jsonc
`)
}

type flagConfig struct {
	configPath string
	size       uint64
	align      uint64
	workers    int
	duration   time.Duration
	writeRatio float64
	help       bool
}

func loadConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("dvstmbench", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	f := flagConfig{}
	fs.StringVar(&f.configPath, "config", "", "path to a JSONC workload config")
	fs.Uint64Var(&f.size, "size", defaultConfig.SegmentSize, "first segment size in bytes")
	fs.Uint64Var(&f.align, "align", defaultConfig.Align, "word alignment in bytes")
	fs.IntVar(&f.workers, "workers", defaultConfig.Workers, "number of concurrent worker goroutines")
	fs.DurationVar(&f.duration, "duration", defaultConfig.Duration, "how long to drive the workload")
	fs.Float64Var(&f.writeRatio, "write-ratio", defaultConfig.WriteRatio, "fraction of transactions that are read/write")
	fs.BoolVar(&f.help, "help", false, "show usage")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig
	if f.configPath != "" {
		loaded, err := loadConfigFile(f.configPath)
		if err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", f.configPath, err)
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "size":
			cfg.SegmentSize = f.size
		case "align":
			cfg.Align = f.align
		case "workers":
			cfg.Workers = f.workers
		case "duration":
			cfg.Duration = f.duration
		case "write-ratio":
			cfg.WriteRatio = f.writeRatio
		}
	})
	cfg.help = f.help

	return cfg, nil
}
