package dataio

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/refine/pkg/refine/record"
)

// decodeCSV reads a header row followed by data rows. Every row becomes a
// *record.Row. Only the metadata column is decoded from JSON, so nested
// metadata survives a round trip while other cells stay strings.
func decodeCSV(data []byte) ([]record.Record, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []record.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var recs []record.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		values := make([]any, len(row))
		for i, cell := range row {
			if i < len(header) && header[i] == record.FieldMetadata {
				values[i] = decodeCell(cell)
			} else {
				values[i] = cell
			}
		}
		recs = append(recs, record.NewRow(header, values))
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return recs, nil
}

func decodeCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if len(trimmed) < 2 {
		return cell
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if !(first == '{' && last == '}') && !(first == '[' && last == ']') {
		return cell
	}
	v, err := record.DecodeValue([]byte(trimmed))
	if err != nil {
		return cell
	}
	return v
}

func encodeCSV(recs []record.Record) ([]byte, error) {
	cols := columns(recs)
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if len(cols) > 0 {
		if err := cw.Write(cols); err != nil {
			return nil, err
		}
	}
	row := make([]string, len(cols))
	for _, rec := range recs {
		for i, c := range cols {
			v, ok := rec.Get(c)
			if !ok {
				row[i] = ""
				continue
			}
			cell, err := encodeCell(rec, c, v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCell(rec record.Record, field string, raw any) (string, error) {
	v := record.Field(rec, field, raw)
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case map[string]any, []any, record.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return record.String(t), nil
	}
}
