package app

import (
	"fmt"
	"strings"
	"time"

	"cartellino/internal/config"
	"cartellino/internal/storage"
	logx "cartellino/pkg/logx"
)

// openStore opens the configured store. With storage disabled the daemon
// still answers from a memory store that is lost on restart.
func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := StorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		log.Warn("storage disabled; start times are kept in memory until restart")
		return storage.NewMemory(), nil
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))
	return st, nil
}

// StorageConfig maps the storage section. enabled is false for a missing
// section or driver "none".
func StorageConfig(cfg *config.Config) (sc storage.Config, enabled bool, err error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	s := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	retain := s.RetainDays
	if retain == 0 {
		retain = config.DefaultRetainDays
	}
	path := strings.TrimSpace(s.Path)

	switch driver {
	case "memory":
		return storage.Config{Driver: driver, RetainDays: retain}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, RetainDays: retain}, true, nil
	case "redis":
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return storage.Config{}, false, fmt.Errorf("storage.redis.addr is required when storage.driver=redis")
		}
		return storage.Config{
			Driver:     driver,
			RetainDays: retain,
			Redis: storage.RedisConfig{
				Addr:     strings.TrimSpace(s.Redis.Addr),
				Password: s.Redis.Password,
				DB:       s.Redis.DB,
			},
		}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", s.Driver)
	}
}
