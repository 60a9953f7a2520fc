package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultBufferSize は書き込みバッファのデフォルトサイズ
const DefaultBufferSize = 10000

// ErrClosed はクローズ済みの Sink への書き込みで返される
var ErrClosed = errors.New("sink: closed")

// Sink は排他制御付きのバッファ付きライター
type Sink struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	closed  bool
	records uint64
	bytes   uint64
}

// New は w に書き込む Sink を作成する
// bufSize が0以下の場合は DefaultBufferSize を使用
func New(w io.Writer, bufSize int) *Sink {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	s := &Sink{w: bufio.NewWriterSize(w, bufSize)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Create は path にファイルを作成し、そこに書き込む Sink を返す
// 親ディレクトリが無ければ作成する
func Create(path string, bufSize int) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return New(f, bufSize), nil
}

// WriteRecord はレコードを1件書き込む
func (s *Sink) WriteRecord(record string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	n, err := s.w.WriteString(record)
	s.bytes += uint64(n)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	s.records++
	return nil
}

// WriteRecords は複数のレコードをまとめて書き込む
// 途中の書き込みに他のジョブが割り込むことはない
func (s *Sink) WriteRecords(records []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, r := range records {
		n, err := s.w.WriteString(r)
		s.bytes += uint64(n)
		if err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		s.records++
	}
	return nil
}

// Close はバッファを書き出し、下位のライターをクローズする。冪等
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// Records は書き込んだレコード数を返す
func (s *Sink) Records() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

// Bytes は書き込んだバイト数を返す
func (s *Sink) Bytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
