// Copyright 2026 The CyberVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report renders tabular exports as CSV, PDF or Excel.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
)

// Format of an export
type Format string

const (
	FormatCSV   Format = "csv"
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
)

// Type selects the data a report contains
type Type string

const (
	TypeAudit      Type = "audit"
	TypeScan       Type = "scan"
	TypeCompliance Type = "compliance"
)

var (
	ErrUnsupportedFormat = authz.NewError(authz.KindBadRequest, "unsupported export format")
	ErrUnsupportedType   = authz.NewError(authz.KindBadRequest, "unsupported report type")
)

// ParseFormat validates an export format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF, FormatExcel:
		return f, nil
	}
	return "", ErrUnsupportedFormat
}

// ParseType validates a report type name
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeAudit, TypeScan, TypeCompliance:
		return t, nil
	}
	return "", ErrUnsupportedType
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Extension returns the file extension of the format
func (f Format) Extension() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return string(f)
}

// Filename returns the attachment name for a report
func Filename(t Type, f Format) string {
	return fmt.Sprintf("%s-report.%s", t, f.Extension())
}

// Table is the format-independent content of a report
type Table struct {
	Title       string
	GeneratedAt time.Time
	Columns     []string
	Rows        [][]string
}

// Renderer writes a table in one format. Output is never empty: the header
// row is written even when there are no rows.
type Renderer interface {
	Render(w io.Writer, t *Table) error
}

// RendererFor returns the renderer of format f
func RendererFor(f Format) (Renderer, error) {
	switch f {
	case FormatCSV:
		return CSVRenderer{}, nil
	case FormatPDF:
		return PDFRenderer{}, nil
	case FormatExcel:
		return ExcelRenderer{}, nil
	}
	return nil, ErrUnsupportedFormat
}

// Render renders t in format f into memory
func Render(f Format, t *Table) ([]byte, error) {
	r, err := RendererFor(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, t); err != nil {
		return nil, fmt.Errorf("failed to render %s report: %w", f, err)
	}
	return buf.Bytes(), nil
}
