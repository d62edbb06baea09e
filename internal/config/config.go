// Package config loads the per-binary configuration structs from the
// environment using envconfig, the way the corpus's services load theirs.
// None of these variables share a common prefix, so every Process call
// uses an empty prefix and relies entirely on the explicit envconfig tags.
package config

import "github.com/kelseyhightower/envconfig"

// StoreNode is the configuration for a store node process.
type StoreNode struct {
	NodeID      string   `envconfig:"NODE_ID" required:"true"`
	Secondaries []string `envconfig:"SECONDARIES"`
	PrimaryURL  string   `envconfig:"PRIMARY_URL"`
	LogPath     string   `envconfig:"LOG_PATH" default:"log.txt"`
	Port        int      `envconfig:"STORE_PORT" default:"9000"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadStoreNode reads StoreNode configuration from the environment.
func LoadStoreNode() (*StoreNode, error) {
	var cfg StoreNode
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Queue is the configuration for the queue service process.
type Queue struct {
	StoreNodes         []string `envconfig:"STORE_NODES" required:"true"`
	Port               int      `envconfig:"QUEUE_PORT" default:"7000"`
	MaxQueueSize       int      `envconfig:"MAX_QUEUE_SIZE" default:"100"`
	SpilloverQueueSize int      `envconfig:"SPILLOVER_QUEUE_SIZE" default:"100"`
	MaxKeyRate         int      `envconfig:"MAX_KEY_RATE" default:"50"`
	StaleThresholdSec  int      `envconfig:"STALE_THRESHOLD_SEC" default:"5"`
	MaxStaleRetries    int      `envconfig:"MAX_STALE_RETRIES" default:"3"`
	WorkerCount        int      `envconfig:"WORKER_COUNT" default:"1"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadQueue reads Queue configuration from the environment.
func LoadQueue() (*Queue, error) {
	var cfg Queue
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Gateway is the configuration for the gateway process.
type Gateway struct {
	StoreNodes        []string `envconfig:"STORE_NODES" required:"true"`
	StoreSecondaries  []string `envconfig:"STORE_SECONDARIES"`
	QueueURL          string   `envconfig:"QUEUE_URL" required:"true"`
	Port              int      `envconfig:"GATEWAY_PORT" default:"8000"`
	LogLevel          string   `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadGateway reads Gateway configuration from the environment.
func LoadGateway() (*Gateway, error) {
	var cfg Gateway
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
