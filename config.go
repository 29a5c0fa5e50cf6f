package ouroboros

import (
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config configures a DB instance.
type Config struct {
	// Backend selects the record store: "badger" (default) or "sqlite".
	Backend string
	// Paths contains data directories. The badger store lives in Paths[0].
	Paths []string
	// InMemory keeps the badger store in memory; Paths is then ignored.
	InMemory bool
	// DSN is the sqlite data source name.
	DSN string
	// MinimumFreeGB is a free-space threshold checked when badger opens.
	MinimumFreeGB uint
	// MaxBlockSize is the largest accepted block. Zero means 2^24 - 1.
	MaxBlockSize int
	// Compression is the badger value compression: zstd, xz or none.
	Compression string
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger
	// StoreLogger receives the badger store's reports. If nil, one is
	// created on stderr.
	StoreLogger *logrus.Logger
}

// defaultLogger returns a logger that writes text logs to stderr at Info level.
func defaultLogger() *slog.Logger { // A
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

func defaultStoreLogger() *logrus.Logger { // A
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}
