package memd

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Config holds configuration for a Client.
type Config struct {
	// Bucket is the bucket name reported on every result.
	Bucket string `yaml:"bucket"`

	// Nodes are the data node addresses (host:port). The position of a node
	// in this list is its index in the cluster map.
	// Required: at least one node.
	Nodes []string `yaml:"nodes"`

	// NumVBuckets is the number of vbuckets of the bucket.
	// Zero disables mutation token tracking.
	NumVBuckets int `yaml:"num_vbuckets"`

	// CollectionsEnabled makes observe strip collection id prefixes from keys.
	CollectionsEnabled bool `yaml:"collections_enabled"`

	// InboundDecompression inflates snappy-compressed values before delivery.
	InboundDecompression bool `yaml:"inbound_decompression"`

	// MaxConnsPerNode is the maximum number of connections per node.
	// Required: must be > 0.
	MaxConnsPerNode int32 `yaml:"max_conns_per_node"`

	// DialTimeout bounds connection establishment. Zero means no timeout.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// CircuitBreaker configures the per-node circuit breaker.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// MetricsNamespace prefixes the exported Prometheus metrics.
	MetricsNamespace string `yaml:"metrics_namespace"`

	// Logger receives diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger `yaml:"-"`

	// Registerer receives the dispatch metrics. If nil, no metrics are exported.
	Registerer prometheus.Registerer `yaml:"-"`

	// Collections resolves collection ids on results. If nil, results carry
	// no scope or collection.
	Collections CollectionCache `yaml:"-"`

	// Dialer is used to create new connections.
	// If nil, a net.Dialer with DialTimeout is used.
	Dialer *net.Dialer `yaml:"-"`
}

// CircuitBreakerConfig configures the per-node circuit breaker.
type CircuitBreakerConfig struct {
	// Enabled turns the circuit breaker on.
	Enabled bool `yaml:"enabled"`

	// MaxRequests is the number of requests allowed through when half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for clearing counts.
	// Zero never clears counts while closed.
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bucket:          "default",
		NumVBuckets:     1024,
		MaxConnsPerNode: 4,
		DialTimeout:     5 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     5 * time.Second,
		},
		MetricsNamespace: "memd",
	}
}

// LoadConfig opens and reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadConfig(f)
}

// ReadConfig parses a YAML configuration on top of DefaultConfig.
// Unknown fields are rejected.
func ReadConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("memd: invalid config: %w", err)
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return ErrNoNodes
	}
	for _, node := range c.Nodes {
		if _, _, err := net.SplitHostPort(node); err != nil {
			return fmt.Errorf("memd: invalid node address %q: %w", node, err)
		}
	}
	if c.MaxConnsPerNode <= 0 {
		return fmt.Errorf("memd: max_conns_per_node must be > 0, got %d", c.MaxConnsPerNode)
	}
	if c.NumVBuckets < 0 || c.NumVBuckets > 1<<16 {
		return fmt.Errorf("memd: num_vbuckets out of range: %d", c.NumVBuckets)
	}
	return nil
}
