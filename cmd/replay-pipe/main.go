// main.go — Entry point for the replay-pipe binary.
// Reads newline-delimited recording events from stdin, runs them through the
// replay pipeline (rate limit, buffer, compress), and ships finished segments
// to a collector endpoint.
//
// Usage: replay-pipe [--flags] < events.ndjson
//
// Input: one JSON object per line. Event lines carry {"timestamp","type","data"};
// a line with a "cmd" field is a directive (flush, error, url, trace) instead.
//
// Exit codes:
//   0 = success
//   1 = pipeline error (start or send failed)
//   2 = usage error (missing args, invalid flags)
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/replay"
	"github.com/replaykit/replay-go/internal/session"
	"github.com/replaykit/replay-go/internal/transport"
	"github.com/rs/zerolog"
)

// version is set at build time via -ldflags.
var version = "1.0.0"

const usageText = `replay-pipe — feed recording events through the replay pipeline

Usage:
  replay-pipe [--flags] < events.ndjson

Input lines (newline-delimited JSON):
  {"timestamp":0,"type":3,"data":{...}}    recording event; timestamp 0 means "now",
                                           timestamps older than 5 minutes are discarded
  {"cmd":"flush"}                          force a segment flush
  {"cmd":"error","value":"<id>"}           record an error id and trigger a buffered send
  {"cmd":"url","value":"<url>"}            attach a visited URL to the open segment
  {"cmd":"trace","value":"<id>"}           attach a trace id to the open segment

Flags:
  --collector <url>       Collector endpoint to POST segments to
  --dry-run               Print segment metadata to stdout instead of sending
  --buffer                Start in buffer mode (send only on error triggers)
  --compression           Compress segments through the background worker
  --sticky                Persist the session across runs (requires --session-file)
  --session-file <path>   Session persistence file (default: in-memory)
  --min-duration <dur>    Minimum segment duration before a flush ships (default: 1ms)
  --verbose               Debug logging
  --version               Show version
  --help                  Show this help

Examples:
  replay-pipe --collector https://collector.example.com/segments < events.ndjson
  replay-pipe --dry-run --compression < events.ndjson
  replay-pipe --dry-run --buffer < events-with-error-trigger.ndjson
`

// pipeConfig is the parsed flag set.
type pipeConfig struct {
	collector   string
	dryRun      bool
	buffer      bool
	compression bool
	sticky      bool
	sessionFile string
	minDuration time.Duration
	verbose     bool
}

// inputLine is the union of event lines and directive lines.
type inputLine struct {
	Cmd   string `json:"cmd,omitempty"`
	Value string `json:"value,omitempty"`

	Timestamp int64           `json:"timestamp,omitempty"`
	Type      int             `json:"type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the main entry point, separated for testability.
// Returns the exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			fmt.Fprintf(stdout, "replay-pipe %s\n", version)
			return 0
		}
		if arg == "--help" || arg == "-h" {
			fmt.Fprint(stdout, usageText)
			return 0
		}
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		fmt.Fprint(stderr, usageText)
		return 2
	}

	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	sender := buildSender(cfg, stdout, log)

	opts := replay.Options{
		StickySession:     cfg.sticky,
		UseCompression:    cfg.compression,
		MinReplayDuration: cfg.minDuration,
		Sender:            sender,
		Logger:            log,
	}
	if cfg.sessionFile != "" {
		opts.Store = session.NewFileStore(cfg.sessionFile)
	}

	r, err := replay.New(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.buffer {
		err = r.StartBuffering()
	} else {
		err = r.Start()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: start recording: %v\n", err)
		return 1
	}

	failed := feedEvents(r, stdin, log)

	if err := r.Stop(replay.StopOptions{ForceFlush: !cfg.buffer}); err != nil {
		fmt.Fprintf(stderr, "Error: stop: %v\n", err)
		return 1
	}
	if failed {
		return 1
	}
	return 0
}

// feedEvents pumps stdin lines into the pipeline until EOF. Malformed lines
// are skipped with a warning; directive failures mark the run as failed.
func feedEvents(r *replay.Replay, stdin io.Reader, log zerolog.Logger) (failed bool) {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line inputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			log.Warn().Int("line", lineNo).Err(err).Msg("skipping malformed input line")
			continue
		}

		if line.Cmd != "" {
			if err := runDirective(r, line); err != nil {
				log.Error().Int("line", lineNo).Str("cmd", line.Cmd).Err(err).Msg("directive failed")
				failed = true
			}
			continue
		}

		e := event.Event{Timestamp: line.Timestamp, Type: line.Type, Data: line.Data}
		if e.Timestamp == 0 {
			e.Timestamp = time.Now().UnixMilli()
		}
		r.AddEvent(e, e.Type == event.TypeFullSnapshot)
	}

	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("reading input failed")
		failed = true
	}
	return failed
}

// runDirective applies one control line.
func runDirective(r *replay.Replay, line inputLine) error {
	switch line.Cmd {
	case "flush":
		return r.FlushImmediate()
	case "error":
		if line.Value != "" {
			r.RecordErrorID(line.Value)
		}
		return r.SendBufferedReplayOrFlush()
	case "url":
		r.RecordURL(line.Value)
		return nil
	case "trace":
		r.RecordTraceID(line.Value)
		return nil
	default:
		return fmt.Errorf("unknown directive %q", line.Cmd)
	}
}

// buildSender returns the configured segment sender: a real HTTP sender, or
// a dry-run sender printing one metadata line per segment.
func buildSender(cfg pipeConfig, stdout io.Writer, log zerolog.Logger) transport.Sender {
	if cfg.dryRun {
		enc := json.NewEncoder(stdout)
		return transport.FuncSender(func(_ context.Context, req transport.SendRequest) error {
			return enc.Encode(map[string]any{
				"replay_id":  req.ReplayID,
				"segment_id": req.SegmentID,
				"bytes":      len(req.RecordingData),
				"urls":       req.EventContext.URLs,
				"error_ids":  req.EventContext.ErrorIDs,
			})
		})
	}
	return transport.NewHTTPSender(cfg.collector, nil, log)
}

// parseFlags hand-parses the flag set; unknown flags are usage errors.
func parseFlags(args []string) (pipeConfig, error) {
	cfg := pipeConfig{minDuration: time.Millisecond}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--collector":
			v, err := flagValue(args, &i)
			if err != nil {
				return cfg, err
			}
			cfg.collector = v
		case "--session-file":
			v, err := flagValue(args, &i)
			if err != nil {
				return cfg, err
			}
			cfg.sessionFile = v
		case "--min-duration":
			v, err := flagValue(args, &i)
			if err != nil {
				return cfg, err
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid --min-duration %q", v)
			}
			cfg.minDuration = d
		case "--dry-run":
			cfg.dryRun = true
		case "--buffer":
			cfg.buffer = true
		case "--compression":
			cfg.compression = true
		case "--sticky":
			cfg.sticky = true
		case "--verbose":
			cfg.verbose = true
		default:
			return cfg, fmt.Errorf("unknown flag %q", args[i])
		}
	}

	if !cfg.dryRun && cfg.collector == "" {
		return cfg, fmt.Errorf("--collector is required (or use --dry-run)")
	}
	if cfg.sticky && cfg.sessionFile == "" {
		return cfg, fmt.Errorf("--sticky requires --session-file")
	}
	return cfg, nil
}

// flagValue returns the value following args[*i], advancing the index.
func flagValue(args []string, i *int) (string, error) {
	if *i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", args[*i])
	}
	*i++
	return args[*i], nil
}
