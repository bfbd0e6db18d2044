package main

import (
	"net/url"
	"strings"
)

type startupSummary struct {
	addr      string
	tls       bool
	publicDir string
	fixtures  string
	cors      []string
	datastore map[string]any
	logging   map[string]any
}

// newStartupSummary describes the resolved configuration without leaking
// credentials.
func newStartupSummary(cfg config) startupSummary {
	fixtures := "embedded"
	if cfg.DataDir != "" {
		fixtures = cfg.DataDir
	}
	datastore := map[string]any{"driver": cfg.StorageDriver}
	switch cfg.StorageDriver {
	case driverPostgres:
		datastore["dsn"] = redactDSN(cfg.Postgres.DSN)
		if cfg.Postgres.MaxConns > 0 {
			datastore["max_conns"] = cfg.Postgres.MaxConns
		}
		if cfg.Postgres.AcquireTimeout > 0 {
			datastore["acquire_timeout"] = cfg.Postgres.AcquireTimeout.String()
		}
	case driverRedis:
		addrs := append([]string(nil), cfg.Redis.Addrs...)
		if cfg.Redis.Addr != "" {
			addrs = append(addrs, cfg.Redis.Addr)
		}
		datastore["addrs"] = addrs
		if cfg.Redis.MasterName != "" {
			datastore["master_name"] = cfg.Redis.MasterName
		}
		if cfg.Redis.KeyPrefix != "" {
			datastore["prefix"] = cfg.Redis.KeyPrefix
		}
		datastore["tls"] = cfg.Redis.TLS.CAFile != "" || cfg.Redis.TLS.CertFile != "" || cfg.Redis.TLS.InsecureSkipVerify
		datastore["auth"] = cfg.Redis.Password != ""
	}
	return startupSummary{
		addr:      cfg.Addr,
		tls:       cfg.TLS.Enabled(),
		publicDir: cfg.PublicDir,
		fixtures:  fixtures,
		cors:      cfg.CORSOrigins,
		datastore: datastore,
		logging: map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
	}
}

func (s startupSummary) LogArgs() []any {
	return []any{
		"addr", s.addr,
		"tls", s.tls,
		"public_dir", s.publicDir,
		"fixtures", s.fixtures,
		"cors_origins", s.cors,
		"datastore", s.datastore,
		"logging", s.logging,
	}
}

// redactDSN masks the password in URL style DSNs. Keyword/value DSNs are
// reduced to their host so secrets never reach the log.
func redactDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return ""
	}
	parsed, err := url.Parse(dsn)
	if err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return parsed.Redacted()
	}
	for _, field := range strings.Fields(dsn) {
		if strings.HasPrefix(field, "host=") {
			return field
		}
	}
	return "*****"
}
