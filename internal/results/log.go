package results

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Header is the first line of the result log.
const Header = "Hash\tString\tTime (ns)\n"

// WriteTo writes the result log: the header, then one line per match in
// insertion order.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bw := bufio.NewWriter(w)
	var total int64
	n, err := bw.WriteString(Header)
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, m := range s.matches {
		n, err := fmt.Fprintf(bw, "0x%08x\t%s\t%d\n", m.Checksum, m.Candidate, m.Elapsed.Nanoseconds())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// Dump writes the result log to path. The log is written to a temporary file
// in the same directory and renamed over path, so an interrupted write never
// leaves a truncated log behind.
func (s *Store) Dump(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := s.WriteTo(tmp); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "chmod %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename to %s", path)
}
