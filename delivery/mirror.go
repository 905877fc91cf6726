package delivery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

func (d *Deliverer) mirror(ctx context.Context, job queue.Snapshot, files []string, progress downloader.ProgressFunc) (string, error) {
	if d.cfg.MirrorDir == "" {
		return "", &DeliveryError{Verb: "mirrored", Unit: "files", Total: len(files), Cause: fmt.Errorf("MIRROR_DIR is not configured")}
	}

	root := commonDir(files)
	dest := filepath.Join(d.cfg.MirrorDir, folderName(job, root))

	var totalBytes int64
	for _, f := range files {
		totalBytes += fileSize(f)
	}
	bar := newTracker(totalBytes, len(files), progress)
	defer bar.finish()

	for i, src := range files {
		name := filepath.Base(src)
		if err := ctx.Err(); err != nil {
			return "", &DeliveryError{Verb: "mirrored", Unit: "files", Done: i, Total: len(files), Cause: err}
		}

		rel, err := filepath.Rel(root, src)
		if err != nil {
			rel = name
		}
		dst := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", &DeliveryError{Verb: "mirrored", Unit: "files", Done: i, Total: len(files), Failed: name, Cause: err}
		}

		counter := writerFunc(func(p []byte) (int, error) {
			bar.add(int64(len(p)), i+1, name, false)
			return len(p), nil
		})
		if err := copyFileVerified(src, dst, counter); err != nil {
			d.logger.Errorf("Job %s: mirror of %s failed after %d/%d files: %v", job.ID, name, i, len(files), err)
			return "", &DeliveryError{Verb: "mirrored", Unit: "files", Done: i, Total: len(files), Failed: name, Cause: err}
		}
		bar.add(0, i+1, name, true)

		if err := os.Remove(src); err != nil {
			d.logger.Warnf("Job %s: could not remove local copy %s: %v", job.ID, src, err)
		}
	}

	d.logger.Infof("Job %s: mirrored %d files (%s) to %s", job.ID, len(files), humanize.IBytes(uint64(totalBytes)), dest)
	return fmt.Sprintf("Mirrored %d files to %s", len(files), dest), nil
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// copyFileVerified copies src to dst, then reads dst back and compares its
// size and SHA-256 with the source. dst is removed when verification fails.
func copyFileVerified(src, dst string, observer io.Writer) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, observer), io.TeeReader(in, srcHasher))
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}

	dstSize, dstSum, err := hashFile(dst)
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("verify copy: %w", err)
	}
	if dstSize != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, destination %d bytes", srcInfo.Size(), dstSize)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: destination differs from source")
	}
	return nil
}

func hashFile(path string) (int64, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, nil, err
	}
	return n, h.Sum(nil), nil
}
