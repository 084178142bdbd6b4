package ingest

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a read-only memory mapping of one trace file. The
// mapping is shared by all chunk workers; nothing ever writes to it.
type mappedFile struct {
	data []byte
	size int64
}

// openMapped maps path into memory. Open, stat and mmap failures are
// the only fatal errors of the whole ingestion.
func openMapped(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ingest: stat %s: %w", path, err)
	}

	size := info.Size()
	if size == 0 {
		return &mappedFile{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ingest: mmap %s: %w", path, err)
	}

	// The file is scanned front to back by every worker.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return &mappedFile{data: data, size: size}, nil
}

// Close releases the mapping. The TraceSet handed to callers owns its
// events outright, so closing is safe as soon as parsing finishes.
func (m *mappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
