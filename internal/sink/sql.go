package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/tkarlsson/sensord/internal/errors"
	"github.com/tkarlsson/sensord/internal/message"
)

// TableName is the table the SQL sink writes to.
const TableName = "sensor_messages"

// SQL persists messages to an embedded DuckDB database.
//
// The table is created lazily from the first message: column types are
// inferred from that message's field values (string becomes VARCHAR, integer
// BIGINT, floating-point DOUBLE; a vector payload is stored rendered as
// VARCHAR). Columns are a synthetic strictly increasing row id followed by
// the message fields in declaration order.
//
// Writes are synchronous, one insert per message. This trades throughput
// for durability: every acknowledged append is in the database. A control
// message inserts nothing and serves as a flush point.
type SQL struct {
	mu      sync.Mutex
	db      *sql.DB
	created bool
	numeric bool
	nextRow int64
	closed  bool
}

// NewSQL opens (or creates) the database file at path.
func NewSQL(path string) (*SQL, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &SQL{db: db, nextRow: 1}, nil
}

// Kind returns KindSQL.
func (s *SQL) Kind() Kind { return KindSQL }

// Append inserts one row keyed by the next row id. A control message is a
// no-op flush point and does not insert.
func (s *SQL) Append(m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrSinkClosed
	}
	if m.IsControl() {
		return nil
	}

	if !s.created {
		if err := s.createTable(m); err != nil {
			return errors.Wrap(err, "create table")
		}
		s.created = true
	}

	var data any
	if s.numeric {
		data = m.Data.Value()
	} else {
		data = m.Data.String()
	}

	_, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (row_id, id, name, data, time_stamp) VALUES (?, ?, ?, ?, ?)`, TableName),
		s.nextRow, m.ID, m.Name, data, m.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "insert")
	}
	s.nextRow++
	return nil
}

// createTable infers the data column type from the first message.
func (s *SQL) createTable(m *message.Message) error {
	dataType := "VARCHAR"
	if m.Data.IsScalar() {
		dataType = "DOUBLE"
		s.numeric = true
	}

	stmt := fmt.Sprintf(strings.TrimSpace(`
CREATE TABLE IF NOT EXISTS %s (
	row_id     BIGINT PRIMARY KEY,
	id         BIGINT,
	name       VARCHAR,
	data       %s,
	time_stamp VARCHAR
)`), TableName, dataType)

	_, err := s.db.Exec(stmt)
	return err
}

// RowCount returns the number of persisted rows, for tests and stats.
func (s *SQL) RowCount() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return 0, nil
	}
	var n int64
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", TableName)).Scan(&n)
	return n, err
}

// Close closes the database. Idempotent.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
