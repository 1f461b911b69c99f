// Package journal keeps an append-only, hash-chained record of every
// notification tlw emits.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Journal appends notifications to a JSONL file. Each record carries the
// previous record's hash.
type Journal struct {
	path string
	log  *logging.Logger
	mu   sync.Mutex
}

// New creates a journal writing to path. log may be nil.
func New(path string, log *logging.Logger) *Journal {
	if log == nil {
		log = logging.Global()
	}
	return &Journal{path: path, log: log}
}

// Path returns the journal file.
func (j *Journal) Path() string { return j.path }

// Deliver appends n, logging instead of failing. It lets the journal act as a
// notification sink.
func (j *Journal) Deliver(n model.Notification) {
	if _, err := j.Append(n); err != nil {
		j.log.ErrorErr("journal append failed", err, map[string]any{"title": n.Title})
	}
}

// Append adds n to the journal and returns the stored record.
func (j *Journal) Append(n model.Notification) (model.JournalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return model.JournalRecord{}, fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return model.JournalRecord{}, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return model.JournalRecord{}, fmt.Errorf("lock journal: %w", err)
	}
	defer unlockFile(file)

	last, err := lastRecord(file)
	if err != nil {
		return model.JournalRecord{}, err
	}

	n.At = n.At.UTC()
	rec := model.JournalRecord{
		Seq:          last.Seq + 1,
		Notification: n,
		PrevHash:     last.RecordHash,
	}
	if rec.RecordHash, err = recordHash(rec); err != nil {
		return model.JournalRecord{}, err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return model.JournalRecord{}, fmt.Errorf("marshal journal record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return model.JournalRecord{}, fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return model.JournalRecord{}, fmt.Errorf("write journal record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return model.JournalRecord{}, fmt.Errorf("sync journal: %w", err)
	}
	return rec, nil
}

// Records reads every well-formed record in order.
func (j *Journal) Records() ([]model.JournalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []model.JournalRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return out, nil
}

// Verify walks the chain at path and returns the number of records checked.
// A missing file is an empty, valid journal.
func Verify(path string) (int, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var (
		prev  model.HashValue
		count int
		line  int
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line++
		var rec model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return count, errclass.ErrJournalChainBroken.WithMessagef("line %d: malformed record: %v", line, err)
		}
		if rec.PrevHash != prev {
			return count, errclass.ErrJournalChainBroken.WithMessagef("line %d: prev_hash does not match line %d", line, line-1)
		}
		want, err := recordHash(rec)
		if err != nil {
			return count, err
		}
		if rec.RecordHash != want {
			return count, errclass.ErrJournalChainBroken.WithMessagef("line %d: record_hash mismatch", line)
		}
		prev = rec.RecordHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan journal: %w", err)
	}
	return count, nil
}

func lastRecord(file *os.File) (model.JournalRecord, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return model.JournalRecord{}, fmt.Errorf("seek to start: %w", err)
	}
	var last model.JournalRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // Verify reports these
		}
		last = rec
	}
	if err := scanner.Err(); err != nil {
		return model.JournalRecord{}, fmt.Errorf("scan journal: %w", err)
	}
	return last, nil
}

// recordHash is the SHA-256 of the record's JSON with record_hash empty.
// encoding/json emits struct fields in declaration order, so the bytes are
// stable across a decode and re-encode.
func recordHash(rec model.JournalRecord) (model.HashValue, error) {
	rec.RecordHash = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:])), nil
}
