package comm

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/pkg/ioman"
	"github.com/skycoin/dlfree/pkg/routing"
)

// DefaultChunkSize is the largest data chunk put on the wire.
const DefaultChunkSize = 1 << 20

// Config configures a Node.
type Config struct {
	ListenPort    int  `json:"listen_port"`    // 0 picks a free port
	MaxPeer       int  `json:"max_peer"`       // size of the peer registry
	ChunkSize     int  `json:"chunk_size"`     // bytes per data chunk
	AdaptiveChunk bool `json:"adaptive_chunk"` // scale chunks by route width

	// RoutingDB, when set, persists every received routing table in a
	// bbolt database at that path.
	RoutingDB string `json:"routing_db"`

	Metrics         bool     `json:"metrics"`          // export prometheus counters
	MonitorInterval Duration `json:"monitor_interval"` // 0 disables traffic logging

	Logger *logging.Logger `json:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MaxPeer:   ioman.DefaultMaxPeer,
		ChunkSize: DefaultChunkSize,
	}
}

// ReadConfig decodes a JSON config over the defaults.
func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReadConfigFile decodes the JSON config at path over the defaults.
func ReadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultConfig(), err
	}
	defer f.Close() // nolint: errcheck
	return ReadConfig(f)
}

// RoutingStore returns the configured routing table store.
func (c *Config) RoutingStore() (routing.Store, error) {
	if c.RoutingDB != "" {
		return routing.BoltDBStore(c.RoutingDB)
	}
	return routing.InMemoryStore(), nil
}

func (c *Config) fill() {
	def := DefaultConfig()
	if c.MaxPeer <= 0 {
		c.MaxPeer = def.MaxPeer
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}
