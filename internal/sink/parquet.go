package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tkarlsson/sensord/config"
	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

// ArchiveRow is the columnar layout of one sample value. Vector payloads
// produce one row per component, tagged with the component index.
type ArchiveRow struct {
	RowID     int64   `parquet:"row_id"`
	SensorID  int64   `parquet:"sensor_id"`
	Name      string  `parquet:"name,zstd"`
	Component int32   `parquet:"component"`
	Value     float64 `parquet:"value"`
	Timestamp string  `parquet:"time_stamp,zstd"`
}

// Parquet archives messages as a zstd-compressed Parquet file, the
// long-term storage tier next to the human-oriented CSV and the queryable
// SQL store. Like the CSV sink it owns a writer goroutine and a queue;
// rows are buffered and written in batches.
type Parquet struct {
	path  string
	queue chan *message.Message
	done  chan struct{}

	closed atomic.Bool
	wg     sync.WaitGroup

	batchSize int
}

// NewParquet creates dir if needed and starts the writer goroutine. One
// timestamped file is produced per sink lifetime.
func NewParquet(dir string, queueSize int) (*Parquet, error) {
	if dir == "" {
		dir = config.DefaultParquetDir
	}
	if queueSize <= 0 {
		queueSize = config.DefaultSinkQueueSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create archive dir")
	}

	path := filepath.Join(dir, fmt.Sprintf("samples-%s.parquet",
		time.Now().Format("2006-01-02_15-04-05")))

	s := &Parquet{
		path:      path,
		queue:     make(chan *message.Message, queueSize),
		done:      make(chan struct{}),
		batchSize: config.DefaultParquetBatchSize,
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// Kind returns KindParquet.
func (s *Parquet) Kind() Kind { return KindParquet }

// Path returns the archive file path.
func (s *Parquet) Path() string { return s.path }

// Append enqueues m for the writer goroutine without blocking.
func (s *Parquet) Append(m *message.Message) error {
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

// Close stops the writer goroutine and finalizes the file. Idempotent.
func (s *Parquet) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	s.wg.Wait()
	return nil
}

func (s *Parquet) writer() {
	defer s.wg.Done()

	f, err := os.Create(s.path)
	if err != nil {
		log.Error("parquet create failed", "path", s.path, "error", err)
		s.closed.Store(true)
		return
	}
	w := parquet.NewGenericWriter[ArchiveRow](f,
		parquet.Compression(&parquet.Zstd))

	var (
		rows  []ArchiveRow
		rowID int64
	)
	flush := func() {
		if len(rows) == 0 {
			return
		}
		if _, err := w.Write(rows); err != nil {
			log.Warn("parquet write failed", "path", s.path, "error", err)
		}
		rows = rows[:0]
	}
	finish := func() {
		flush()
		if err := w.Close(); err != nil {
			log.Warn("parquet close failed", "path", s.path, "error", err)
		}
		f.Close()
		log.Info("parquet sink closed", "path", s.path)
	}

	appendRows := func(m *message.Message) {
		for i, v := range m.Data.Values() {
			rowID++
			rows = append(rows, ArchiveRow{
				RowID:     rowID,
				SensorID:  m.ID,
				Name:      m.Name,
				Component: int32(i),
				Value:     v,
				Timestamp: m.Timestamp,
			})
		}
		if len(rows) >= s.batchSize {
			flush()
		}
	}

	for {
		select {
		case m := <-s.queue:
			if m.IsControl() {
				s.closed.Store(true)
				finish()
				return
			}
			appendRows(m)
		case <-s.done:
			for {
				select {
				case m := <-s.queue:
					if !m.IsControl() {
						appendRows(m)
					}
				default:
					finish()
					return
				}
			}
		}
	}
}
