package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nodesk/idvault/internal/flagx"
	"github.com/nodesk/idvault/internal/timex"
)

// JsonConfig is the file-facing shape of Config. Durations accept either
// strings like "1h" or integer nanoseconds.
type JsonConfig struct {
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	EndpointAddr          string         `json:"endpoint_addr"`
}

// parseJson overlays values from the JSON file named by -c/-config, if
// any. Unreadable or invalid files panic: a requested config file that
// cannot be used is a startup error.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.TokenValidityDuration.Duration != 0 {
		config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	}
	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
}
