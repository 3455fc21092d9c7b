package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DB_DRIVER", "DB_DSN", "REDIS_ADDR", "SCHEMA_CACHE_TTL_SECONDS"} {
		t.Setenv(k, "")
	}
	c := Load(nil)
	if c.Addr != ":8080" || c.DBDriver != "sqlite" || c.DBDSN != DefaultSQLiteDSN {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.SchemaCacheTTL != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m", c.SchemaCacheTTL)
	}
	if c.RedisAddr != "" {
		t.Errorf("redis addr = %q, want empty", c.RedisAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("SCHEMA_CACHE_TTL_SECONDS", "30")
	c := Load(nil)
	if c.DBDriver != "postgres" || c.SchemaCacheTTL != 30*time.Second {
		t.Errorf("overrides not applied: %+v", c)
	}
}

func TestGetEnvAsIntBadValue(t *testing.T) {
	t.Setenv("SOME_INT", "ten")
	if got := GetEnvAsInt("SOME_INT", 10, nil); got != 10 {
		t.Errorf("got %d, want default 10", got)
	}
}
