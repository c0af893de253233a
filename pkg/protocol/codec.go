package protocol

import (
	"bufio"
	"errors"
	"io"
)

// MaxRecordSize is the default cap on one wire record. A record this
// size already holds a session far larger than any real poker table.
const MaxRecordSize = 64 * 1024

// ErrRecordTooLarge is returned when a single line exceeds the
// reader's record size limit. The stream cannot be resynchronized
// past an oversized record, so callers should close the connection.
var ErrRecordTooLarge = errors.New("protocol: record exceeds size limit")

// LineReader reads newline-delimited records from a stream.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r with the default record size limit.
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderSize(r, MaxRecordSize)
}

// NewLineReaderSize wraps r with an explicit record size limit.
func NewLineReaderSize(r io.Reader, maxRecord int) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxRecord)
	return &LineReader{scanner: sc}
}

// ReadRecord returns the next non-empty line. It returns io.EOF at
// clean end of stream and ErrRecordTooLarge on an oversized line. The
// returned slice is only valid until the next call.
func (lr *LineReader) ReadRecord() ([]byte, error) {
	for lr.scanner.Scan() {
		line := lr.scanner.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
	if err := lr.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrRecordTooLarge
		}
		return nil, err
	}
	return nil, io.EOF
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\r') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// LineWriter writes newline-delimited records to a stream.
type LineWriter struct {
	w *bufio.Writer
}

// NewLineWriter wraps w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

// WriteRecord writes one encoded record and its line terminator, then
// flushes so the peer sees the record immediately.
func (lw *LineWriter) WriteRecord(record []byte) error {
	if _, err := lw.w.Write(record); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	return lw.w.Flush()
}

// WriteServerMessage encodes and writes one server record.
func (lw *LineWriter) WriteServerMessage(m *ServerMessage) error {
	data, err := EncodeServerMessage(m)
	if err != nil {
		return err
	}
	return lw.WriteRecord(data)
}
