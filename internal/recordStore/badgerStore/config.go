package badgerStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// StoreConfig configures a badger backed record store.
type StoreConfig struct {
	Path          string // data directory, ignored when InMemory is set
	InMemory      bool
	MinimumFreeGB uint
	Compression   Compression
	Logger        *logrus.Logger
}

func (sc *StoreConfig) checkConfig() error {
	if !sc.Compression.valid() {
		return fmt.Errorf("unknown compression %d", sc.Compression)
	}
	if sc.InMemory {
		return nil
	}
	if sc.Path == "" {
		return errors.New("no path provided in configuration")
	}

	info, err := os.Stat(sc.Path)
	if os.IsNotExist(err) {
		return errors.New("path does not exist")
	}
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	usage, err := disk.Usage(sc.Path)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	availableGB := usage.Free / (1024 * 1024 * 1024)
	if availableGB < uint64(sc.MinimumFreeGB) {
		return errors.New("not enough space available on disk")
	}

	return nil
}
