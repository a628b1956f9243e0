// Package replay re-sends historical traffic records to a running server.
package replay

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Column names of the historical capture, matched case-insensitively.
const (
	colIP         = "ip address"
	colLatitude   = "latitude"
	colLongitude  = "longitude"
	colTimestamp  = "timestamp"
	colSuspicious = "suspicious"
)

var requiredColumns = []string{colIP, colLatitude, colLongitude, colTimestamp, colSuspicious}

// Record is one row of the capture, shaped as the /receive payload.
type Record struct {
	IP         string  `json:"ip"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timestamp  float64 `json:"timestamp"`
	Suspicious bool    `json:"suspicious"`
}

func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(bufio.NewReaderSize(f, 1<<20))
}

// ReadCSV parses the capture and returns its rows ordered by timestamp.
// Rows that fail to parse are logged and skipped.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv header lacks column %q", col)
		}
	}

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping unreadable row")
			continue
		}
		rec, err := parseRow(row, idx)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping row")
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

func parseRow(row []string, idx map[string]int) (Record, error) {
	field := func(col string) (string, error) {
		i := idx[col]
		if i >= len(row) {
			return "", fmt.Errorf("missing %s", col)
		}
		return strings.TrimSpace(row[i]), nil
	}
	number := func(col string) (float64, error) {
		s, err := field(col)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", col, err)
		}
		return v, nil
	}

	var rec Record
	var err error
	if rec.IP, err = field(colIP); err != nil {
		return Record{}, err
	}
	if rec.IP == "" {
		return Record{}, errors.New("empty ip address")
	}
	if rec.Latitude, err = number(colLatitude); err != nil {
		return Record{}, err
	}
	if rec.Longitude, err = number(colLongitude); err != nil {
		return Record{}, err
	}
	if rec.Timestamp, err = number(colTimestamp); err != nil {
		return Record{}, err
	}
	s, err := field(colSuspicious)
	if err != nil {
		return Record{}, err
	}
	if rec.Suspicious, err = parseFlag(s); err != nil {
		return Record{}, fmt.Errorf("%s: %w", colSuspicious, err)
	}
	return rec, nil
}

// parseFlag accepts true/false spellings and numbers, non-zero being true.
func parseFlag(s string) (bool, error) {
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("%q is not a flag", s)
	}
	return f != 0, nil
}
