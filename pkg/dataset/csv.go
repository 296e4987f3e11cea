package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ReadCSV loads a whole CSV file with a header row. Empty cells are null.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	t, err := DecodeCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// DecodeCSV reads every column as a string so identifiers such as "250.01"
// or "V57" keep their raw spelling.
func DecodeCSV(r io.Reader) (*Table, error) {
	bufReader := bufio.NewReaderSize(r, 256*1024)

	// Skip UTF-8 BOM if present
	if bom, err := bufReader.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	df := dataframe.ReadCSV(bufReader,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{""}),
		dataframe.WithLazyQuotes(true),
	)
	return fromFrame(df)
}

// WriteCSV writes the table with a header row, creating parent directories.
// Null cells are written as empty fields.
func WriteCSV(path string, t *Table) error {
	return writeFile(path, func(w io.Writer) error { return EncodeCSV(w, t) })
}

func EncodeCSV(w io.Writer, t *Table) error {
	// gota renders NA as "NaN"; the file format wants an empty field.
	out := t.Clone()
	for _, name := range out.Columns() {
		err := out.MapColumn(name, func(c Cell) Cell {
			if c.IsNull() {
				return Str("")
			}
			return c
		})
		if err != nil {
			return err
		}
	}
	return out.df.WriteCSV(w, dataframe.WriteHeader(true))
}

func writeFile(path string, encode func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(file, 256*1024)
	if err := encode(buf); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return file.Close()
}
