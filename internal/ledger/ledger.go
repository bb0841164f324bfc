// Package ledger stores attendance records in a CSV table and guarantees at most
// one record per person per day.
//
// The table is small, so every write reads the whole file, changes it in memory and
// atomically replaces it. All reads and writes go through one mutex. The set of ids
// already present today is kept in memory, tagged with its date, and reseeded from
// the file whenever the local date changes.
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-attendance/internal/apperr"
)

// Column layout of the attendance table.
var header = []string{"ID", "Nome", "Data", "Hora", "Confianca"}

// Date and time formats stored in the table.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Record is one attendance row.
type Record struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Confidence string `json:"confidence"`

	// raw holds the row exactly as read, line terminator included, so rewrites
	// leave untouched rows byte-for-byte identical.
	raw []byte
}

// FormatConfidence renders a percentage the way the table stores it ("60.0%").
func FormatConfidence(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 1, 64) + "%"
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is the attendance table plus today's dedup set.
type Ledger struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	day     string
	present map[int]struct{}
}

// New returns a ledger backed by the CSV file at path. The file is created on the
// first write.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the backing file.
func (l *Ledger) Path() string { return l.path }

// Today returns the current local date in table format.
func (l *Ledger) Today() string {
	return l.now().Format(DateLayout)
}

// SeedToday rebuilds the dedup set from today's stored records.
func (l *Ledger) SeedToday() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seedLocked(l.Today())
}

// Rollover reseeds the dedup set when the date moved on since the last seed.
// It reports whether a reseed happened.
func (l *Ledger) Rollover() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	today := l.Today()
	if l.day == today {
		return false, nil
	}
	return true, l.seedLocked(today)
}

// Has reports whether id already has a record today.
func (l *Ledger) Has(id int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureTodayLocked(); err != nil {
		return false, err
	}
	_, ok := l.present[id]
	return ok, nil
}

// RecordIfAbsent appends a record for id unless one already exists today. It returns
// the written record and true, or nil and false when id was already present.
func (l *Ledger) RecordIfAbsent(id int, name string, confidencePct float64) (*Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureTodayLocked(); err != nil {
		return nil, false, err
	}
	if _, ok := l.present[id]; ok {
		slog.Debug("attendance already recorded today", "id", id, "name", name)
		return nil, false, nil
	}

	t, err := l.loadLocked()
	if err != nil {
		return nil, false, err
	}
	now := l.now()
	rec := Record{
		ID:         id,
		Name:       name,
		Date:       now.Format(DateLayout),
		Time:       now.Format(TimeLayout),
		Confidence: FormatConfidence(confidencePct),
	}
	t.records = append(t.records, rec)
	if err := l.writeLocked(t); err != nil {
		return nil, false, err
	}
	l.present[id] = struct{}{}
	return &rec, true, nil
}

// RecordsForDate returns the records of date in file order.
func (l *Ledger) RecordsForDate(date string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out, nil
}

// TodaysRecords is RecordsForDate(Today()).
func (l *Ledger) TodaysRecords() ([]Record, error) {
	return l.RecordsForDate(l.Today())
}

// ClearDate removes every record of date and returns how many were removed. Rows of
// other dates are rewritten unchanged. Clearing today also empties the dedup set.
func (l *Ledger) ClearDate(date string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.loadLocked()
	if err != nil {
		return 0, err
	}
	kept := t.records[:0:0]
	for _, r := range t.records {
		if r.Date != date {
			kept = append(kept, r)
		}
	}
	removed := len(t.records) - len(kept)
	if removed > 0 {
		t.records = kept
		if err := l.writeLocked(t); err != nil {
			return 0, err
		}
	}
	if today := l.Today(); date == today {
		l.day = today
		l.present = map[int]struct{}{}
	}
	return removed, nil
}

// ClearToday is ClearDate(Today()).
func (l *Ledger) ClearToday() (int, error) {
	return l.ClearDate(l.Today())
}

func (l *Ledger) ensureTodayLocked() error {
	if today := l.Today(); l.day != today {
		return l.seedLocked(today)
	}
	return nil
}

func (l *Ledger) seedLocked(today string) error {
	records, err := l.readLocked()
	if err != nil {
		return err
	}
	present := make(map[int]struct{})
	for _, r := range records {
		if r.Date == today {
			present[r.ID] = struct{}{}
		}
	}
	l.day = today
	l.present = present
	return nil
}

func (l *Ledger) readLocked() ([]Record, error) {
	t, err := l.loadLocked()
	if err != nil {
		return nil, err
	}
	return t.records, nil
}

func (l *Ledger) loadLocked() (*table, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &table{}, nil
		}
		return nil, fmt.Errorf("reading ledger: %w: %w", err, apperr.ErrStorage)
	}
	t, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w: %w", l.path, err, apperr.ErrStorage)
	}
	return t, nil
}

func (l *Ledger) writeLocked(t *table) error {
	var buf bytes.Buffer
	if err := t.format(&buf); err != nil {
		return fmt.Errorf("encoding ledger: %w: %w", err, apperr.ErrStorage)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w: %w", err, apperr.ErrStorage)
	}
	if err := renameio.WriteFile(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing ledger: %w: %w", err, apperr.ErrStorage)
	}
	return nil
}

// table is the parsed file. Rows read from disk keep their raw bytes; rows added
// in memory are encoded with the line terminator the file already uses.
type table struct {
	header  []byte
	crlf    bool
	records []Record
}

func parse(data []byte) (*table, error) {
	t := &table{crlf: bytes.Contains(data, []byte("\r\n"))}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = len(header)

	var offset int64
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, err
		}
		end := cr.InputOffset()
		raw := data[offset:end]
		offset = end

		if line == 1 && row[0] == header[0] {
			t.header = raw
			continue
		}
		id, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id %q", line, row[0])
		}
		t.records = append(t.records, Record{
			ID:         id,
			Name:       row[1],
			Date:       row[2],
			Time:       row[3],
			Confidence: row[4],
			raw:        raw,
		})
	}
}

func (t *table) format(w io.Writer) error {
	eol := "\n"
	if t.crlf {
		eol = "\r\n"
	}
	// writeRaw restores a terminator the final line of the file may lack.
	writeRaw := func(raw []byte) error {
		if _, err := w.Write(raw); err != nil {
			return err
		}
		if !bytes.HasSuffix(raw, []byte("\n")) {
			_, err := io.WriteString(w, eol)
			return err
		}
		return nil
	}

	if t.header != nil {
		if err := writeRaw(t.header); err != nil {
			return err
		}
	} else if err := encodeRow(w, header, t.crlf); err != nil {
		return err
	}
	for _, r := range t.records {
		if r.raw != nil {
			if err := writeRaw(r.raw); err != nil {
				return err
			}
			continue
		}
		row := []string{strconv.Itoa(r.ID), r.Name, r.Date, r.Time, r.Confidence}
		if err := encodeRow(w, row, t.crlf); err != nil {
			return err
		}
	}
	return nil
}

func encodeRow(w io.Writer, row []string, crlf bool) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = crlf
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
