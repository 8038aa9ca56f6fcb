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

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

// CSVRenderer writes RFC 4180 CSV
type CSVRenderer struct{}

func (CSVRenderer) Render(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// PDFRenderer writes a landscape A4 table
type PDFRenderer struct{}

func (PDFRenderer) Render(w io.Writer, t *Table) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(t.Title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, t.Title, "", 1, "L", false, 0, "")
	if !t.GeneratedAt.IsZero() {
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 6, "Generated "+t.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	cols := len(t.Columns)
	if cols == 0 {
		cols = 1
	}
	width := (pageWidth - left - right) / float64(cols)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range t.Columns {
		pdf.CellFormat(width, 7, tr(truncate(c, width)), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 7)
	for _, row := range t.Rows {
		for i := range t.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(width, 6, tr(truncate(cell, width)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(t.Rows) == 0 {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, "No records.", "", 1, "L", false, 0, "")
	}

	return pdf.Output(w)
}

// truncate keeps a cell on one line at roughly 1.6mm per character.
func truncate(s string, width float64) string {
	limit := int(width / 1.6)
	if limit < 4 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

// ExcelRenderer writes an OOXML workbook with one sheet
type ExcelRenderer struct{}

func (ExcelRenderer) Render(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if len(t.Columns) > 0 {
		last, err := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return err
		}
	}

	for i, row := range t.Rows {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &values); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	_, err = f.WriteTo(w)
	return err
}
