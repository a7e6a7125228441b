package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// relocate moves the processed source file to its destination. It is best
// effort: unmet preconditions return silently and failures are only logged.
func (r *Request) relocate(ctx context.Context) {
	if r.sourcePath == "" || !isDir(filepath.Dir(r.sourcePath)) || !isFile(r.sourcePath) {
		return
	}
	if r.destinationPath == "" || !isDir(filepath.Dir(r.destinationPath)) {
		return
	}

	if err := moveFile(r.sourcePath, r.destinationPath); err != nil {
		r.logger.Warn("relocate processed file",
			"routine", RoutineFromContext(ctx),
			"src", r.sourcePath,
			"dst", r.destinationPath,
			"error", err,
		)
		return
	}
	r.logger.Info("moved processed file to destination folder",
		"routine", RoutineFromContext(ctx),
		"dst", r.destinationPath,
	)
}

// moveFile replaces dst with src. When a plain rename is impossible (for
// example across devices) the file is copied and the source removed.
func moveFile(src, dst string) error {
	if isFile(dst) {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("remove existing %s: %w", dst, err)
		}
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile copies src to dst preserving the source permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
