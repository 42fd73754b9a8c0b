package main

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
	"github.com/blockwatch-bot/blockwatch/internal/ingestor"
	"github.com/blockwatch-bot/blockwatch/internal/mempool"
	"github.com/blockwatch-bot/blockwatch/internal/relay"
	"github.com/blockwatch-bot/blockwatch/internal/store"
)

// backendLog is the logging backend used by all subsystems. Each subsystem
// is given its own tagged btclog.Logger pulled from this backend, the same
// split the daemon has always used so debuglevel strings of the form
// "INGST=debug,ALRT=info" continue to work.
var backendLog = btclog.NewBackend(logWriter{})

// logRotator, when non-nil, receives a copy of every log line. Nothing in
// this package sets it, so log output goes to stdout only.
var logRotator *logrotate.Logger

// logWriter writes to os.Stdout and, when logRotator is set, to the
// rotator as well.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers for each subsystem. The short all-caps tags match the convention
// the daemon has always used in its debuglevel grammar.
var (
	botLog   = backendLog.Logger("BLKW")
	ingstLog = backendLog.Logger("INGST")
	alrtLog  = backendLog.Logger("ALRT")
	relyLog  = backendLog.Logger("RELY")
	strLog   = backendLog.Logger("STOR")
)

// subsystemLoggers maps each subsystem tag to its logger, whose level
// setLogLevel adjusts. Adding a subsystem means adding one line here.
var subsystemLoggers = map[string]btclog.Logger{
	"BLKW":  botLog,
	"INGST": ingstLog,
	"ALRT":  alrtLog,
	"RELY":  relyLog,
	"STOR":  strLog,
}

func init() {
	ingestor.UseLogger(ingstLog)
	mempool.UseLogger(ingstLog)
	alert.UseLogger(alrtLog)
	relay.UseLogger(relyLog)
	store.UseLogger(strLog)
}

// setLogLevel sets the logging level for the provided subsystem tag. An
// unrecognized tag is silently ignored, matching the daemon's historical
// behavior of never failing startup over a log-level typo.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return
	}
	logger.SetLevel(level)
}

// setLogLevels splits a "subsystem=level,subsystem=level" string (the
// RUST_LOG-equivalent grammar named in the spec's configuration section)
// and applies each pair, or applies a single bare level to every subsystem
// when no "=" is present.
func setLogLevels(debugLevel string) {
	if debugLevel == "" {
		return
	}

	if level, ok := btclog.LevelFromString(debugLevel); ok {
		for _, logger := range subsystemLoggers {
			logger.SetLevel(level)
		}
		return
	}

	for _, pair := range splitCSV(debugLevel) {
		subsysLevel := splitOnce(pair, '=')
		if len(subsysLevel) != 2 {
			continue
		}
		setLogLevel(subsysLevel[0], subsysLevel[1])
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
