package sink

import (
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tkarlsson/sensord/internal/message"
)

func TestParquetArchivesRows(t *testing.T) {
	s, err := NewParquet(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewParquet: %v", err)
	}

	t0 := time.Date(2026, 8, 25, 12, 0, 0, 0, time.Local)
	if err := s.Append(message.NewAt(1, "cpu", message.Scalar(42), t0)); err != nil {
		t.Fatalf("Append scalar: %v", err)
	}
	if err := s.Append(message.NewAt(2, "loadvec", message.Vector([]float64{0.5, 1.5, 2.5}), t0)); err != nil {
		t.Fatalf("Append vector: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows, err := parquet.ReadFile[ArchiveRow](s.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4 (one per value component)", len(rows))
	}

	if rows[0].SensorID != 1 || rows[0].Value != 42 || rows[0].Component != 0 {
		t.Errorf("scalar row = %+v", rows[0])
	}
	for i := 1; i < 4; i++ {
		r := rows[i]
		if r.SensorID != 2 || r.Name != "loadvec" {
			t.Errorf("vector row %d = %+v", i, r)
		}
		if r.Component != int32(i-1) {
			t.Errorf("vector row %d component = %d, want %d", i, r.Component, i-1)
		}
		if r.Value != 0.5+float64(i-1) {
			t.Errorf("vector row %d value = %v", i, r.Value)
		}
	}
	// Synthetic row ids are strictly increasing across messages.
	for i, r := range rows {
		if r.RowID != int64(i+1) {
			t.Errorf("row %d has row_id %d, want %d", i, r.RowID, i+1)
		}
	}
}

func TestParquetControlFinalizesFile(t *testing.T) {
	s, err := NewParquet(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewParquet: %v", err)
	}
	defer s.Close()

	s.Append(message.New(1, "cpu", message.Scalar(1)))
	s.Append(message.Control(1, "cpu"))

	deadline := time.Now().Add(2 * time.Second)
	for !s.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("parquet sink did not latch closed on control")
		}
		time.Sleep(time.Millisecond)
	}
	s.wg.Wait()

	rows, err := parquet.ReadFile[ArchiveRow](s.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1 (control writes nothing)", len(rows))
	}
}
