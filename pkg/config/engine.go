package config

import (
	"github.com/marmos91/turbopipe/pkg/pipe"
)

// ToEngineConfig converts the engine section into a pipe.Config. The
// writer and buffer pool are left for pipe.New to default.
func (c *Config) ToEngineConfig() pipe.Config {
	return pipe.Config{
		Workers:     c.Engine.Workers,
		QueueSize:   c.Engine.QueueSize,
		ChunkSize:   c.Engine.ChunkSize.Int(),
		Snapshot:    c.Engine.Snapshot,
		MaxFailures: c.Engine.MaxFailures,
	}
}
