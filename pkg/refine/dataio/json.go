package dataio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cognicore/refine/pkg/refine/record"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 64 << 20

// decodeJSON accepts an array of objects or a single object.
func decodeJSON(data []byte) ([]record.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []record.Record{}, nil
	}
	if trimmed[0] == '{' {
		m, err := record.DecodeJSON(trimmed)
		if err != nil {
			return nil, err
		}
		return []record.Record{m}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	recs := make([]record.Record, 0, len(items))
	for i, item := range items {
		m, err := record.DecodeJSON(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		recs = append(recs, m)
	}
	return recs, nil
}

// decodeJSONL reads one object per line. Blank lines are skipped; the first
// malformed line fails the whole read.
func decodeJSONL(data []byte) ([]record.Record, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	recs := []record.Record{}
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		m, err := record.DecodeJSON(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return recs, nil
}

func encodeJSON(recs []record.Record) ([]byte, error) {
	if len(recs) == 0 {
		return []byte("[]\n"), nil
	}
	out, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func encodeJSONL(recs []record.Record) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
