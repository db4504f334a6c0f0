package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// Formatter writes command results.
type Formatter interface {
	Format(data any, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatText:
		return &TextFormatter{}, nil
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TextFormatter writes the `header` tagged fields of each row separated by
// spaces, without a header line. Values implementing fmt.Stringer are
// written through String.
type TextFormatter struct{}

func (f *TextFormatter) Format(data any, writer io.Writer) error {
	rows, err := rowsOf(data)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(rowValues(row), " ")); err != nil {
			return err
		}
	}
	return nil
}

// TableFormatter formats data as an aligned table using `header` tags.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any, writer io.Writer) error {
	rows, err := rowsOf(data)
	if err != nil || len(rows) == 0 {
		return err
	}

	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, strings.Join(headers(rows[0].Type()), "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(rowValues(row), "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CSVFormatter formats data as CSV using `header` tags.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, writer io.Writer) error {
	rows, err := rowsOf(data)
	if err != nil || len(rows) == 0 {
		return err
	}

	w := csv.NewWriter(writer)
	if err := w.Write(headers(rows[0].Type())); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(rowValues(row)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// rowsOf returns the struct rows of data: the elements of a slice, or data
// itself when it is a single struct.
func rowsOf(data any) ([]reflect.Value, error) {
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		return []reflect.Value{v}, nil
	case reflect.Slice:
		rows := make([]reflect.Value, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			row := reflect.Indirect(v.Index(i))
			if row.Kind() != reflect.Struct {
				return nil, fmt.Errorf("rows must be structs, got %s", row.Kind())
			}
			rows = append(rows, row)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("data must be a struct or a slice of structs")
	}
}

func headers(t reflect.Type) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("header"); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func rowValues(v reflect.Value) []string {
	var out []string
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("header") == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%v", v.Field(i).Interface()))
	}
	return out
}
