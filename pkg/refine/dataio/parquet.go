package dataio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/cognicore/refine/pkg/refine/record"
)

// fieldsKey is the footer key holding the JSON list of record field names,
// one per column.
const fieldsKey = "refine.fields"

func columnName(i int) string { return fmt.Sprintf("col_%d", i) }

// parquetSchema declares n optional UTF8 columns. Each cell holds the JSON
// encoding of one field value.
func parquetSchema(n int) string {
	fields := make([]map[string]string, n)
	for i := range fields {
		fields[i] = map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", columnName(i)),
		}
	}
	b, _ := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	return string(b)
}

func encodeParquet(recs []record.Record) ([]byte, error) {
	cols := columns(recs)
	if len(cols) == 0 {
		cols = []string{record.FieldText}
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(len(cols)), pfw, 4)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	names, err := json.Marshal(cols)
	if err != nil {
		return nil, err
	}
	value := string(names)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{Key: fieldsKey, Value: &value})

	for i, rec := range recs {
		row := make(map[string]any, len(cols))
		for j, c := range cols {
			v, ok := rec.Get(c)
			if !ok {
				row[columnName(j)] = nil
				continue
			}
			cell, err := json.Marshal(record.Field(rec, c, v))
			if err != nil {
				_ = pw.WriteStop()
				return nil, fmt.Errorf("record %d field %s: %w", i, c, err)
			}
			row[columnName(j)] = string(cell)
		}
		line, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("parquet flush: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

func decodeParquet(data []byte) ([]record.Record, error) {
	pr, err := reader.NewParquetReader(newMemFile(data), nil, 4)
	if err != nil {
		return nil, fmt.Errorf("parquet reader: %w", err)
	}
	defer pr.ReadStop()

	leaves, fields, ours := parquetColumns(pr.Footer)
	n := int(pr.GetNumRows())
	recs := make([]record.Record, 0, n)
	if n == 0 {
		return recs, nil
	}

	rows, err := pr.ReadByNumber(n)
	if err != nil {
		return nil, fmt.Errorf("parquet read: %w", err)
	}
	for i, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		decoded, err := record.DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		cells, _ := decoded.(map[string]any)

		var rec record.Record = record.NewMap()
		for j, leaf := range leaves {
			cell, ok := lookupFold(cells, leaf)
			if !ok || cell == nil {
				continue
			}
			value := cell
			if s, isString := cell.(string); isString && ours {
				if value, err = record.DecodeValue([]byte(s)); err != nil {
					return nil, fmt.Errorf("row %d column %s: %w", i, fields[j], err)
				}
			}
			rec = rec.Set(fields[j], value)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// parquetColumns returns the leaf column names, the record field each maps
// to, and whether the file carries our field list.
func parquetColumns(footer *parquet.FileMetaData) (leaves, fields []string, ours bool) {
	schema := footer.GetSchema()
	if len(schema) > 1 {
		for _, el := range schema[1:] {
			leaves = append(leaves, el.GetName())
		}
	}
	fields = leaves
	for _, kv := range footer.GetKeyValueMetadata() {
		if kv.GetKey() != fieldsKey {
			continue
		}
		var names []string
		if err := json.Unmarshal([]byte(kv.GetValue()), &names); err == nil && len(names) == len(leaves) {
			return leaves, names, true
		}
	}
	return leaves, fields, false
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// memFile serves an in-memory parquet file to the reader.
type memFile struct {
	*bytes.Reader
	data []byte
}

func newMemFile(data []byte) *memFile {
	return &memFile{Reader: bytes.NewReader(data), data: data}
}

func (m *memFile) Write(p []byte) (int, error) { return 0, errors.New("memfile: read only") }
func (m *memFile) Close() error                { return nil }

func (m *memFile) Open(string) (source.ParquetFile, error) { return newMemFile(m.data), nil }

func (m *memFile) Create(string) (source.ParquetFile, error) {
	return nil, errors.New("memfile: read only")
}
