// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package durable

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/tomtom215/logkeep/internal/format"
)

// parseCSV reads header-plus-rows delimited text. Ragged rows are zipped
// against the header, matching the validator's permissive stance.
func parseCSV(data []byte) ([]format.Record, bool) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []format.Record{}, true
	}
	if err != nil {
		return nil, false
	}

	records := []format.Record{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			return records, true
		}
		if err != nil {
			return nil, false
		}
		rec := make(format.Record, len(header))
		for i, field := range header {
			if i < len(row) {
				rec[field] = row[i]
			}
		}
		records = append(records, rec)
	}
}
