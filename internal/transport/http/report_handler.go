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

package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cybervault/cybervault/internal/report"
)

// ExportRequest selects the report to render
type ExportRequest struct {
	OrgID      string `json:"org_id"`
	ReportType string `json:"report_type"`
	Format     string `json:"format"`
	ScanID     string `json:"scan_id,omitempty"`
}

// ExportReport renders a report and returns it as an attachment
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req ExportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	reportType, err := report.ParseType(req.ReportType)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	export, err := h.reports.Export(r.Context(), p, report.Request{
		Type:   reportType,
		Format: format,
		ScanID: req.ScanID,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Body)
}
