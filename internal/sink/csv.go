package sink

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

// CSV appends messages to a comma-space separated file. It owns a dedicated
// writer goroutine and an internal queue: Append enqueues and returns
// immediately, so the ingestion loop never blocks on file I/O.
//
// The header row is written lazily, once, on the first real sample. A
// control message stops the writer and closes the file; no further writes
// are accepted after that.
type CSV struct {
	path  string
	queue chan *message.Message
	done  chan struct{}

	closed atomic.Bool
	wg     sync.WaitGroup

	f *os.File
	w *bufio.Writer
}

// NewCSV creates the output file and starts the writer goroutine.
func NewCSV(path string, queueSize int) (*CSV, error) {
	if queueSize <= 0 {
		queueSize = config.DefaultSinkQueueSize
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create csv")
	}

	s := &CSV{
		path:  path,
		queue: make(chan *message.Message, queueSize),
		done:  make(chan struct{}),
		f:     f,
		w:     bufio.NewWriter(f),
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// Kind returns KindCSV.
func (s *CSV) Kind() Kind { return KindCSV }

// Path returns the output file path.
func (s *CSV) Path() string { return s.path }

// Append enqueues m for the writer goroutine. It returns ErrSinkClosed after
// a control message has been observed and ErrQueueFull when the writer is
// behind; neither blocks the caller.
func (s *CSV) Append(m *message.Message) error {
	if s.closed.Load() {
		return errors.ErrSinkClosed
	}
	select {
	case s.queue <- m:
		return nil
	default:
		return errors.ErrQueueFull
	}
}

// Close stops the writer goroutine and closes the file. Idempotent.
func (s *CSV) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	s.wg.Wait()
	return nil
}

// writer dequeues messages and appends one row per sample. It terminates on
// a control message or on Close, whichever comes first, and owns all file
// access so no locking is needed on the write path.
func (s *CSV) writer() {
	defer s.wg.Done()
	defer func() {
		s.w.Flush()
		s.f.Close()
		log.Info("csv sink closed", "path", s.path)
	}()

	headerWritten := false
	for {
		select {
		case m := <-s.queue:
			if m.IsControl() {
				s.closed.Store(true)
				return
			}
			if !headerWritten {
				s.w.WriteString(strings.Join(message.FieldNames(), ", ") + "\n")
				headerWritten = true
			}
			s.w.WriteString(strings.Join(m.FieldValues(), ", ") + "\n")
			if err := s.w.Flush(); err != nil {
				log.Warn("csv write failed", "path", s.path, "error", err)
			}
		case <-s.done:
			// Drain what was enqueued before shutdown.
			for {
				select {
				case m := <-s.queue:
					if m.IsControl() {
						return
					}
					if !headerWritten {
						s.w.WriteString(strings.Join(message.FieldNames(), ", ") + "\n")
						headerWritten = true
					}
					s.w.WriteString(strings.Join(m.FieldValues(), ", ") + "\n")
				default:
					return
				}
			}
		}
	}
}
