package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ArchiveLogs gzips files matching target that are older than age, leaving
// <name>.gz beside the original and removing the plain file. It returns the
// number of files compressed.
func ArchiveLogs(logger *slog.Logger, age time.Duration, target RetentionTarget) (int, error) {
	if age <= 0 {
		return 0, nil
	}
	archived := 0
	for _, path := range matchTarget(target, time.Now().Add(-age)) {
		if err := compressFile(path); err != nil {
			WarnWithContext(logger, "log archive failed; file left uncompressed", "log_archive_failed",
				String("path", path),
				Error(err),
				String(FieldImpact, "log file keeps using uncompressed disk space"),
			)
			continue
		}
		archived++
		if logger != nil {
			logger.Debug("log archived", String("path", path), String(FieldEventType, "log_archived"))
		}
	}
	return archived, nil
}

func compressFile(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dstPath := path + ".gz"
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dstPath)
		}
	}()

	zw, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		dst.Close()
		return err
	}
	zw.Name = info.Name()
	zw.ModTime = info.ModTime()
	if _, err = io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return fmt.Errorf("compress %s: %w", path, err)
	}
	if err = zw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Chtimes(dstPath, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	src.Close()
	return os.Remove(path)
}
