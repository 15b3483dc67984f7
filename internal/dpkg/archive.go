package dpkg

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ArchiveFiles returns the absolute paths a .deb archive unpacks. The
// archive's data tarball is streamed through dpkg-deb; only the member
// headers are read.
func (t *Tool) ArchiveFiles(debPath string) ([]string, error) {
	cmd := exec.Command("dpkg-deb", "--fsys-tarfile", debPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open dpkg-deb pipe: %w", err)
	}
	var stderr limitedBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("dpkg-deb --fsys-tarfile failed for %s: %w", debPath, err)
	}

	paths, readErr := readTarNames(stdout)
	if readErr != nil {
		// Drain so dpkg-deb can exit, then surface the real error.
		io.Copy(io.Discard, stdout)
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("dpkg-deb --fsys-tarfile failed for %s: %w (stderr: %s)", debPath, err, stderr.String())
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read archive listing of %s: %w", debPath, readErr)
	}
	return paths, nil
}

func readTarNames(r io.Reader) ([]string, error) {
	var paths []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return paths, nil
		}
		if err != nil {
			return nil, err
		}
		if p, ok := normalizeEntry(hdr.Name); ok {
			paths = append(paths, p)
		}
	}
}

// limitedBuffer keeps the first chunk of stderr for error messages without
// buffering a runaway stream.
type limitedBuffer struct {
	buf []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	const limit = 4096
	if len(b.buf) < limit {
		n := limit - len(b.buf)
		if n > len(p) {
			n = len(p)
		}
		b.buf = append(b.buf, p[:n]...)
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
