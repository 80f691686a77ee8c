package server

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// LogType selects a raftlog.Log implementation (spec.md §6). LogMemory
// opens a raftlog.MemoryLog; LogSimpleFile and LogSegmentedFile both
// open the same segmented raftlog.FileLog.
type LogType string

const (
	LogMemory        LogType = "memory"
	LogSimpleFile    LogType = "simple-file"
	LogSegmentedFile LogType = "segmented-file"
)

// Config is server.Server's bootstrap configuration: loaded from a
// JSON file, then overridden by flags of the same name (floyd's own
// floyd::Options, adapted to Go's flag+JSON idiom rather than a
// gflags-style command line).
type Config struct {
	LocalIP       string   `json:"local_ip"`
	LocalPort     int      `json:"local_port"`
	PeerAddresses []string `json:"peer_addresses"`

	LogPath  string `json:"log_path"`
	DataPath string `json:"data_path"`

	ElectionTimeoutMS  int `json:"election_timeout_ms"`
	HeartbeatIntervalMS int `json:"heartbeat_interval_ms"`
	SegmentSize        int `json:"segment_size"`

	LogType LogType `json:"log_type"`
}

// DefaultConfig mirrors floyd's Options defaults (spec.md §6:
// election_timeout_ms default 1000).
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMS:   1000,
		HeartbeatIntervalMS: 100,
		SegmentSize:         64 * 1024 * 1024,
		LogType:             LogSegmentedFile,
	}
}

// LoadConfig reads a JSON config file (if path is non-empty) over
// DefaultConfig, then applies flag overrides from args.
func LoadConfig(path string, args []string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("server: open config: %w", err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("server: parse config: %w", err)
		}
	}

	fs := flag.NewFlagSet("floydd", flag.ContinueOnError)
	localIP := fs.String("local_ip", cfg.LocalIP, "local peer IP")
	localPort := fs.Int("local_port", cfg.LocalPort, "local peer port")
	peerAddresses := fs.String("peer_addresses", strings.Join(cfg.PeerAddresses, ","), "comma-separated peer host:port list")
	logPath := fs.String("log_path", cfg.LogPath, "raft log directory")
	dataPath := fs.String("data_path", cfg.DataPath, "kv store data directory")
	electionTimeoutMS := fs.Int("election_timeout_ms", cfg.ElectionTimeoutMS, "election timeout base, milliseconds")
	heartbeatIntervalMS := fs.Int("heartbeat_interval_ms", cfg.HeartbeatIntervalMS, "heartbeat interval, milliseconds")
	segmentSize := fs.Int("segment_size", cfg.SegmentSize, "log segment rollover size, bytes")
	logType := fs.String("log_type", string(cfg.LogType), "memory | simple-file | segmented-file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.LocalIP = *localIP
	cfg.LocalPort = *localPort
	cfg.LogPath = *logPath
	cfg.DataPath = *dataPath
	cfg.ElectionTimeoutMS = *electionTimeoutMS
	cfg.HeartbeatIntervalMS = *heartbeatIntervalMS
	cfg.SegmentSize = *segmentSize
	cfg.LogType = LogType(*logType)
	if *peerAddresses != "" {
		cfg.PeerAddresses = strings.Split(*peerAddresses, ",")
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.LocalIP == "" {
		return fmt.Errorf("server: local_ip is required")
	}
	if c.LocalPort == 0 {
		return fmt.Errorf("server: local_port is required")
	}
	switch c.LogType {
	case LogMemory, LogSimpleFile, LogSegmentedFile:
	default:
		return fmt.Errorf("server: unknown log_type %q", c.LogType)
	}
	if c.LogType != LogMemory && c.LogPath == "" {
		return fmt.Errorf("server: log_path is required for log_type %q", c.LogType)
	}
	if c.ElectionTimeoutMS <= 0 {
		return fmt.Errorf("server: election_timeout_ms must be positive")
	}
	if c.HeartbeatIntervalMS <= 0 || c.HeartbeatIntervalMS >= c.ElectionTimeoutMS {
		return fmt.Errorf("server: heartbeat_interval_ms must be positive and less than election_timeout_ms")
	}
	return nil
}

func (c Config) electionTimeout() time.Duration {
	return time.Duration(c.ElectionTimeoutMS) * time.Millisecond
}

func (c Config) heartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c Config) localID() string {
	return fmt.Sprintf("%s:%d", c.LocalIP, c.LocalPort)
}
