package storage

import (
	"fmt"
	"strings"

	logx "gchatlog/pkg/logx"
)

const (
	DriverNone   = "none"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the journal for cfg.Driver, or (nil, nil) when the driver is
// blank or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", DriverNone:
		return nil, nil
	case DriverFile:
		return openFile(cfg, log)
	case DriverSQLite, "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", d)
	}
}
