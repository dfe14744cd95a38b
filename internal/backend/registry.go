package backend

import (
	"sync"
	"time"

	"github.com/rzpsarthak13/unistore/internal/core"
)

// Config carries everything a factory may need to build its driver. Each
// backend reads only its own fields and ignores the rest.
type Config struct {
	// Name is the logical database name; file-backed mechanisms derive
	// their default paths from it.
	Name string

	// Path overrides the file location for embedded mechanisms (bolt,
	// sqlite).
	Path string

	// Size is a hint forwarded to backends that accept one.
	Size int64

	// DSN configures the mysql mechanism.
	DSN string

	// Redis settings.
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DynamoDB settings.
	Region          string
	Table           string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// Debug shortens diagnostic thresholds.
	Debug bool
}

// Factory builds a driver for one mechanism. Implementations register
// themselves from init, mirroring database/sql driver registration.
type Factory interface {
	// Type returns the mechanism identifier.
	Type() string

	// IsSupported reports whether the mechanism can run with the given
	// configuration.
	IsSupported(cfg Config) bool

	// Create builds the driver. Only called after IsSupported.
	Create(cfg Config) (Driver, error)
}

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

// Register installs a mechanism factory. Called from each implementation's
// init; duplicate registration is a programming error.
func Register(f Factory) {
	if f == nil {
		panic("backend: nil factory")
	}
	if f.Type() == "" {
		panic("backend: factory with empty type")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[f.Type()]; dup {
		panic("backend: duplicate factory " + f.Type())
	}
	registry[f.Type()] = f
}

// DefaultMechanisms is the probe order used when the caller does not supply
// one: the embedded indexed engine, the relational engines, the persistent
// key-value stores, then the session and in-memory fallbacks.
func DefaultMechanisms() []string {
	return []string{"bolt", "sqlite", "mysql", "redis", "dynamodb", "session", "memory"}
}

// Probe walks mechanisms in order and creates the first supported one.
// No supported mechanism is a ConstraintError.
func Probe(mechanisms []string, cfg Config) (Driver, error) {
	if len(mechanisms) == 0 {
		mechanisms = DefaultMechanisms()
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, m := range mechanisms {
		f, ok := registry[m]
		if !ok || !f.IsSupported(cfg) {
			continue
		}
		drv, err := f.Create(cfg)
		if err != nil {
			return nil, core.WrapError(core.KindConstraint, err, "mechanism %q failed to initialize", m)
		}
		return drv, nil
	}
	return nil, core.NewError(core.KindConstraint, "No storage mechanism found")
}

// Registered lists the installed mechanism identifiers.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
