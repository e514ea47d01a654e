package env

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	mu sync.RWMutex
	v  = newViper()
)

func newViper() *viper.Viper {
	v := viper.New()
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

// LoadFile layers a config file beneath the process environment. Keys in the
// file use the environment variable names; environment values win.
func LoadFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	next := newViper()
	next.SetConfigFile(path)
	if err := next.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v = next
	return nil
}

func lookup(key string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !v.IsSet(key) {
		return "", false
	}
	return v.GetString(key), true
}

func String(key string, def string) string {
	if s, ok := lookup(key); ok {
		return s
	}
	return def
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	if s, ok := lookup(key); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func Bool(key string, def bool) (bool, error) {
	if s, ok := lookup(key); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func Int(key string, def int) (int, error) {
	if s, ok := lookup(key); ok {
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}
