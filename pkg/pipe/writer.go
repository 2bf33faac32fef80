package pipe

// FDWriter is the raw write primitive used by workers.
//
// Write performs at most one successful write of p to fd and reports how
// many bytes were accepted. Implementations retry interrupted calls and wait
// for writability on non-blocking descriptors; a short count is not an
// error. off is NoOffset for a write at the current position, or an absolute
// offset for a positional write.
//
// Check reports whether fd is open for writing. The engine calls it before
// accepting a job so that a bad descriptor fails the submission instead of
// the write.
type FDWriter interface {
	Check(fd int) error
	Write(fd int, p []byte, off int64) (int, error)
}

// writeAll writes data to fd until it is fully accepted or an error occurs.
// chunk caps the bytes per call; zero or negative means no cap.
func writeAll(w FDWriter, fd int, data []byte, off int64, chunk int) (int, error) {
	written := 0
	for written < len(data) {
		end := len(data)
		if chunk > 0 && end-written > chunk {
			end = written + chunk
		}

		pos := NoOffset
		if off >= 0 {
			pos = off + int64(written)
		}

		n, err := w.Write(fd, data[written:end], pos)
		if n > 0 {
			written += n
		}
		if err != nil {
			return written, err
		}
		if n <= 0 {
			return written, ErrShortWrite
		}
	}
	return written, nil
}
