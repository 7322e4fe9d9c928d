package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/rawping/internal/packet"
	"github.com/tkjaer/rawping/internal/probe"
	"github.com/tkjaer/rawping/internal/version"
	"gopkg.in/yaml.v3"
)

type Args struct {
	Destinations []string
	TargetsFile  string // YAML file with more destinations

	// Probing
	Count        uint
	Deadline     time.Duration
	Size         int
	Timeout      time.Duration
	Interval     time.Duration
	Interface    string // source address or interface name
	Unprivileged bool
	ID           uint // first ICMP identifier, 0 = random
	NoChecksum   bool
	Parallel     uint

	// Output
	Quiet       bool
	Json        bool   // output json to stdout
	JsonFile    string // output json to file while printing text
	Table       bool   // summary table after all sessions
	MetricsAddr string // serve Prometheus metrics on this address

	// Logging
	Log      string // log file path, empty means stderr
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool

	// Set custom usage message
	flag.Usage = func() {
		println("rawping - user-space ICMP echo")
		println()
		println("Sends ICMP echo requests over raw (or unprivileged datagram) sockets and")
		println("reports per-probe round-trip times and loss statistics.")
		println()
		println("Usage:")
		println("  rawping [OPTIONS] DESTINATION [DESTINATION...]")
		println()
		println("Examples:")
		println("  rawping 192.0.2.1                     # Ping until interrupted")
		println("  rawping -c 3 example.com              # Three probes")
		println("  rawping -u -c 5 example.com           # Unprivileged datagram socket")
		println("  rawping -c 10 -J a.example b.example  # JSON summaries to stdout")
		println("  rawping -f targets.yaml --table -c 5  # Destinations from file, summary table")
		println()
		println("Options:")
		flag.PrintDefaults()
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.UintVarP(&args.Count, "count", "c", 0, "Number of probes (0 = until deadline or interrupt)")
	flag.DurationVarP(&args.Deadline, "deadline", "w", 0, "Stop once cumulative round-trip time reaches this (0 = none)")
	flag.IntVarP(&args.Size, "size", "s", probe.DefaultSize, "Payload size in bytes")
	flag.DurationVarP(&args.Timeout, "timeout", "t", probe.DefaultTimeout, "Per-probe reply timeout")
	flag.DurationVarP(&args.Interval, "interval", "i", probe.DefaultInterval, "Interval between probe starts")
	flag.StringVarP(&args.Interface, "interface", "I", "", "Source IPv4 address or interface name")
	flag.BoolVarP(&args.Unprivileged, "unprivileged", "u", false, "Use an unprivileged ICMP datagram socket")
	flag.UintVar(&args.ID, "id", 0, "ICMP identifier of the first destination (0 = random)")
	flag.BoolVar(&args.NoChecksum, "no-checksum", false, "Accept replies with an invalid ICMP checksum")
	flag.UintVarP(&args.Parallel, "parallel", "P", 4, "Destinations probed concurrently")
	flag.StringVarP(&args.TargetsFile, "targets-file", "f", "", "YAML file listing destinations")
	flag.BoolVarP(&args.Quiet, "quiet", "q", false, "Only print the start line and statistics")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON summaries to stdout (disables text)")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON summaries to file (keeps text)")
	flag.BoolVar(&args.Table, "table", false, "Print a summary table after all destinations finish")
	flag.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9115")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = stderr)")
	flag.StringVar(&args.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	args.Destinations = flag.Args()
	if args.TargetsFile != "" {
		targets, err := LoadTargets(args.TargetsFile)
		if err != nil {
			return args, err
		}
		args.Destinations = append(args.Destinations, targets...)
	}
	args.Destinations = dedupe(args.Destinations)
	if len(args.Destinations) == 0 {
		return args, errors.New("destination is required")
	}

	switch {
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	case args.Json && args.Quiet:
		return args, errors.New("cannot use both --json and --quiet")
	case args.Size < 0 || args.Size > packet.MaxPayload:
		return args, fmt.Errorf("packet size must be between 0 and %d", packet.MaxPayload)
	case args.Timeout <= 0:
		return args, errors.New("timeout must be greater than 0")
	case args.Interval < 0:
		return args, errors.New("interval must not be negative")
	case args.Deadline < 0:
		return args, errors.New("deadline must not be negative")
	case args.ID > 65535:
		return args, errors.New("identifier must be between 0 and 65535")
	case args.ID > 0 && args.ID+uint(len(args.Destinations))-1 > 65535:
		return args, errors.New("identifier+destinations must be below 65536")
	case args.Parallel == 0:
		return args, errors.New("parallel must be at least 1")
	}

	return args, nil
}

// Mode returns the socket mode selected by the arguments.
func (a Args) Mode() probe.Mode {
	if a.Unprivileged {
		return probe.ModeDatagram
	}
	return probe.ModeRaw
}

// targetsFile is the layout of --targets-file.
type targetsFile struct {
	Targets []string `yaml:"targets"`
}

// LoadTargets reads the destination list from a YAML file.
func LoadTargets(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("targets file: %w", err)
	}
	var tf targetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("targets file %s: %w", path, err)
	}
	return tf.Targets, nil
}

// dedupe drops empty and repeated destinations, keeping first occurrences.
func dedupe(dests []string) []string {
	out := make([]string, 0, len(dests))
	for _, d := range dests {
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}
