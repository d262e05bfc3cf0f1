package config

import (
	"errors"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// cache holds one parsed value per configuration type.
	cache sync.Map // reflect.Type -> parsed struct value

	dotenvOnce sync.Once
)

// ErrNilConfig is returned when Load is called with a nil pointer.
var ErrNilConfig = errors.New("config: nil config pointer")

// Load parses environment variables into cfg based on its `env` struct tags.
// Each configuration type is parsed once per process; subsequent calls for
// the same type return the cached value. A .env file in the working
// directory, if present, is loaded into the environment on first use.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilConfig
	}

	dotenvOnce.Do(func() {
		// Missing .env is the normal production case.
		_ = godotenv.Load()
	})

	t := reflect.TypeOf(*cfg)
	if v, ok := cache.Load(t); ok {
		*cfg = v.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	// LoadOrStore keeps the first successfully parsed value if two
	// goroutines race on the same type.
	actual, _ := cache.LoadOrStore(t, *cfg)
	*cfg = actual.(T)
	return nil
}

// MustLoad is Load that panics on failure. Useful at startup where a missing
// required variable should abort the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
