package badgerStore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize calculates the total size of files within a directory
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// displayDiskUsage logs the disk usage of the volume holding path
func displayDiskUsage(log *logrus.Logger, path string) error {
	usage, err := disk.Usage(path)
	if err != nil {
		log.WithFields(logrus.Fields{
			"path": path,
		}).Errorf("Error retrieving disk usage stats: %v", err)
		return err
	}

	pathSize, err := calculateDirectorySize(path)
	if err != nil {
		log.WithFields(logrus.Fields{
			"path": path,
		}).Errorf("Error calculating directory size: %v", err)
		return err
	}

	log.WithFields(logrus.Fields{
		"Path":        path,
		"Filesystem":  usage.Fstype,
		"Total (GB)":  fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
		"Used (GB)":   fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
		"Free (GB)":   fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
		"Usage by DB": fmt.Sprintf("%.2f", float64(pathSize)/1e9),
	}).Info("Disk Usage")

	return nil
}
