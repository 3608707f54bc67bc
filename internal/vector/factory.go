package vector

import "fmt"

// Backend identifies which Store implementation to construct.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendQdrant Backend = "qdrant"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend Backend
	Memory  MemoryConfig
	Qdrant  QdrantConfig
}

// New constructs a Store from cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.Memory)
	case BackendQdrant:
		return NewQdrantStore(cfg.Qdrant)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
