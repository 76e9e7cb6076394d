package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "DOCEASY_SIGNALING_LISTEN_ADDR"
	envVarMode            = "DOCEASY_SIGNALING_MODE"
	envVarLogFormat       = "DOCEASY_SIGNALING_LOG_FORMAT"
	envVarLogLevel        = "DOCEASY_SIGNALING_LOG_LEVEL"
	envVarShutdownTimeout = "DOCEASY_SIGNALING_SHUTDOWN_TIMEOUT"
	envVarDatabaseURL     = "DATABASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Signaling WebSocket knobs.
	envVarMaxConnections           = "MAX_CONNECTIONS"
	envVarMaxSignalPayloadBytes    = "MAX_SIGNAL_PAYLOAD_BYTES"
	envVarMaxMessageBytes          = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond     = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarHelloTimeout             = "SIGNALING_HELLO_TIMEOUT"
	envVarWSIdleTimeout            = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval           = "SIGNALING_WS_PING_INTERVAL"
	envVarSendQueueFrames          = "SEND_QUEUE_FRAMES"
	envVarSendQueueBytes           = "SEND_QUEUE_BYTES"
	envVarOverflowCloseAfter       = "SEND_QUEUE_OVERFLOW_CLOSE_AFTER"
	envVarDedupeParticipants       = "DEDUPE_PARTICIPANTS_BY_USER"

	// Room lifecycle knobs.
	envVarRoomGracePeriod   = "ROOM_GRACE_PERIOD"
	envVarRoomSweepInterval = "ROOM_SWEEP_INTERVAL"
)

const (
	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultMode            Mode = ModeDev

	DefaultMaxSignalPayloadBytes = 64 * 1024
	// DefaultMessageOverheadBytes is headroom on top of the payload cap for
	// the envelope fields when deriving the WebSocket read limit.
	DefaultMessageOverheadBytes      = 4 * 1024
	DefaultMaxMessagesPerSecond      = 50
	DefaultHelloTimeout              = 5 * time.Second
	DefaultWSIdleTimeout             = 60 * time.Second
	DefaultWSPingInterval            = 20 * time.Second
	DefaultSendQueueFrames           = 256
	DefaultSendQueueBytes            = 1 << 20 // 1MiB
	DefaultOverflowCloseAfter        = 8

	DefaultRoomGracePeriod   = 30 * time.Second
	DefaultRoomSweepInterval = 5 * time.Second
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// DatabaseURL selects the Postgres-backed room store. Empty falls back
	// to the in-memory store, which is only permitted in dev mode.
	DatabaseURL string

	AllowedOrigins []string

	// MaxConnections caps concurrent signaling connections. <= 0 means
	// unlimited.
	MaxConnections int

	// MaxSignalPayloadBytes bounds the opaque payload of a single signaling
	// event; the payload is rejected at the boundary before it enters the
	// router.
	MaxSignalPayloadBytes int

	// MaxMessageBytes is the WebSocket read limit for a whole envelope.
	MaxMessageBytes int64

	MaxMessagesPerSecond int

	// HelloTimeout bounds how long a fresh connection may take to send its
	// hello handshake before being dropped.
	HelloTimeout   time.Duration
	WSIdleTimeout  time.Duration
	WSPingInterval time.Duration

	SendQueueFrames    int
	SendQueueBytes     int
	OverflowCloseAfter int

	// DedupeParticipantsByUser makes a join evict an earlier connection of
	// the same user id from the room instead of keeping both.
	DedupeParticipantsByUser bool

	RoomGracePeriod   time.Duration
	RoomSweepInterval time.Duration

	ICEServers []webrtc.ICEServer
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, _ := lookup(envVarLogFormat)
	logFormatDefault := envLogFormat
	envLogFormatSet := envLogFormat != ""
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, _ := lookup(envVarLogLevel)
	logLevelDefault := envLogLevel
	envLogLevelSet := envLogLevel != ""
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	databaseURL := envOrDefault(lookup, envVarDatabaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	maxConnections, err := envIntOrDefault(lookup, envVarMaxConnections, 0)
	if err != nil {
		return Config{}, err
	}
	maxSignalPayloadBytes, err := envIntOrDefault(lookup, envVarMaxSignalPayloadBytes, DefaultMaxSignalPayloadBytes)
	if err != nil {
		return Config{}, err
	}

	// Track whether the read limit was explicitly configured so we can
	// derive a default from the (possibly overridden) payload cap after
	// flag parsing.
	envMaxMessageBytes, envMaxMessageBytesOK := lookup(envVarMaxMessageBytes)
	envMaxMessageBytesSet := envMaxMessageBytesOK && strings.TrimSpace(envMaxMessageBytes) != ""
	maxMessageBytes64, err := envIntOrDefault(lookup, envVarMaxMessageBytes, maxSignalPayloadBytes+DefaultMessageOverheadBytes)
	if err != nil {
		return Config{}, err
	}

	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	helloTimeout, err := envDurationOrDefault(lookup, envVarHelloTimeout, DefaultHelloTimeout)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	sendQueueFrames, err := envIntOrDefault(lookup, envVarSendQueueFrames, DefaultSendQueueFrames)
	if err != nil {
		return Config{}, err
	}
	sendQueueBytes, err := envIntOrDefault(lookup, envVarSendQueueBytes, DefaultSendQueueBytes)
	if err != nil {
		return Config{}, err
	}
	overflowCloseAfter, err := envIntOrDefault(lookup, envVarOverflowCloseAfter, DefaultOverflowCloseAfter)
	if err != nil {
		return Config{}, err
	}
	dedupeParticipants, err := envBoolOrDefault(lookup, envVarDedupeParticipants, false)
	if err != nil {
		return Config{}, err
	}
	roomGracePeriod, err := envDurationOrDefault(lookup, envVarRoomGracePeriod, DefaultRoomGracePeriod)
	if err != nil {
		return Config{}, err
	}
	roomSweepInterval, err := envDurationOrDefault(lookup, envVarRoomSweepInterval, DefaultRoomSweepInterval)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("doceasy-signaling", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod (env "+envVarMode+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json (env "+envVarLogFormat+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error (env "+envVarLogLevel+")")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")
	fs.StringVar(&databaseURL, "database-url", databaseURL, "Postgres URL for the room store; empty = in-memory (dev only; env "+envVarDatabaseURL+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (env "+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (env "+envTurnCredential+")")
	fs.IntVar(&maxConnections, "max-connections", maxConnections, "Maximum concurrent signaling connections (0 = unlimited; env "+envVarMaxConnections+")")
	fs.IntVar(&maxSignalPayloadBytes, "max-signal-payload-bytes", maxSignalPayloadBytes, "Max opaque signal payload size in bytes (env "+envVarMaxSignalPayloadBytes+")")
	maxMessageBytes := maxMessageBytes64
	fs.IntVar(&maxMessageBytes, "max-signaling-message-bytes", maxMessageBytes, "Max inbound signaling WS message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-signaling-messages-per-second", maxMessagesPerSecond, "Max inbound signaling WS messages per second per connection (env "+envVarMaxMessagesPerSecond+")")
	fs.DurationVar(&helloTimeout, "hello-timeout", helloTimeout, "Max time for a new connection to send its hello (env "+envVarHelloTimeout+")")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close idle signaling connections after this duration (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Ping interval; must be < --ws-idle-timeout (env "+envVarWSPingInterval+")")
	fs.IntVar(&sendQueueFrames, "send-queue-frames", sendQueueFrames, "Max queued outbound frames per connection (env "+envVarSendQueueFrames+")")
	fs.IntVar(&sendQueueBytes, "send-queue-bytes", sendQueueBytes, "Max queued outbound bytes per connection (env "+envVarSendQueueBytes+")")
	fs.IntVar(&overflowCloseAfter, "send-queue-overflow-close-after", overflowCloseAfter, "Close a connection after this many consecutive queue overflows (env "+envVarOverflowCloseAfter+")")
	fs.BoolVar(&dedupeParticipants, "dedupe-participants-by-user", dedupeParticipants, "Evict an older connection of the same user id on join (env "+envVarDedupeParticipants+")")
	fs.DurationVar(&roomGracePeriod, "room-grace-period", roomGracePeriod, "How long an empty room survives before removal (env "+envVarRoomGracePeriod+")")
	fs.DurationVar(&roomSweepInterval, "room-sweep-interval", roomSweepInterval, "Background empty-room sweep cadence (env "+envVarRoomSweepInterval+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	// Derive the read limit from the payload cap when unset.
	if !envMaxMessageBytesSet && !setFlags["max-signaling-message-bytes"] {
		maxMessageBytes = maxSignalPayloadBytes + DefaultMessageOverheadBytes
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if mode == ModeProd && strings.TrimSpace(databaseURL) == "" {
		return Config{}, fmt.Errorf("%s must be set in prod mode (the in-memory room store is dev only)", envVarDatabaseURL)
	}
	if maxSignalPayloadBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signal-payload-bytes must be > 0", envVarMaxSignalPayloadBytes)
	}
	if maxMessageBytes <= maxSignalPayloadBytes {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > %s (%d); got %d",
			envVarMaxMessageBytes, envVarMaxSignalPayloadBytes, maxSignalPayloadBytes, maxMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxMessagesPerSecond)
	}
	if helloTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--hello-timeout must be > 0", envVarHelloTimeout)
	}
	if wsIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-idle-timeout must be > 0", envVarWSIdleTimeout)
	}
	if wsPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be > 0", envVarWSPingInterval)
	}
	if wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be < %s/--ws-idle-timeout", envVarWSPingInterval, envVarWSIdleTimeout)
	}
	if sendQueueFrames <= 0 {
		return Config{}, fmt.Errorf("%s/--send-queue-frames must be > 0", envVarSendQueueFrames)
	}
	if sendQueueBytes <= maxSignalPayloadBytes {
		return Config{}, fmt.Errorf("%s/--send-queue-bytes must be > %s (%d); got %d",
			envVarSendQueueBytes, envVarMaxSignalPayloadBytes, maxSignalPayloadBytes, sendQueueBytes)
	}
	if overflowCloseAfter <= 0 {
		return Config{}, fmt.Errorf("%s/--send-queue-overflow-close-after must be > 0", envVarOverflowCloseAfter)
	}
	if roomGracePeriod <= 0 {
		return Config{}, fmt.Errorf("%s/--room-grace-period must be > 0", envVarRoomGracePeriod)
	}
	if roomSweepInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--room-sweep-interval must be > 0", envVarRoomSweepInterval)
	}

	return Config{
		ListenAddr:      listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:    strings.TrimSpace(databaseURL),
		AllowedOrigins: splitCommaList(allowedOriginsStr),

		MaxConnections:        maxConnections,
		MaxSignalPayloadBytes: maxSignalPayloadBytes,
		MaxMessageBytes:       int64(maxMessageBytes),
		MaxMessagesPerSecond:  maxMessagesPerSecond,

		HelloTimeout:   helloTimeout,
		WSIdleTimeout:  wsIdleTimeout,
		WSPingInterval: wsPingInterval,

		SendQueueFrames:    sendQueueFrames,
		SendQueueBytes:     sendQueueBytes,
		OverflowCloseAfter: overflowCloseAfter,

		DedupeParticipantsByUser: dedupeParticipants,

		RoomGracePeriod:   roomGracePeriod,
		RoomSweepInterval: roomSweepInterval,

		ICEServers: iceServers,
	}, nil
}

func parseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want dev or prod)", s)
	}
}

func parseLogFormat(s string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(s))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (want text or json)", s)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
	}
}

func defaultLogFormatForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return "info"
	}
	return "debug"
}

// NewLogger builds the process logger from the loaded config.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func envOrDefault(lookup func(string) (string, bool), key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func envIntOrDefault(lookup func(string) (string, bool), key string, def int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, def bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
