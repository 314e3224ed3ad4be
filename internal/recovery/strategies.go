// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package recovery

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/logkeep/internal/format"
)

// maxCutCandidates bounds how many truncation points the balanced-prefix
// strategy will try before giving up.
const maxCutCandidates = 32

// parseDocument parses the bytes as exactly one JSON object.
func parseDocument(data []byte) (format.Document, bool) {
	var doc format.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// firstDocument parses the first complete JSON document and ignores
// whatever trails it. Handles the common corruption where a crash left
// garbage appended after a complete write.
func firstDocument(data []byte) (format.Document, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc format.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	return doc, true
}

// balancedPrefix handles truncated writes: the file ends mid-value. It
// scans for positions where a JSON value has just ended, then tries,
// newest cut first, to parse the prefix with the still-open delimiters
// closed. Dangling keys make the newest cut unparseable, in which case an
// earlier cut (after the previous complete value) is tried.
func balancedPrefix(data []byte) (format.Document, bool) {
	type cut struct {
		end   int    // index just past a complete value
		stack []byte // open delimiters at that point, outermost first
	}

	var (
		stack []byte
		cuts  []cut
		inStr bool
		esc   bool
	)

	record := func(i int) {
		cuts = append(cuts, cut{end: i + 1, stack: append([]byte(nil), stack...)})
		if len(cuts) > maxCutCandidates {
			cuts = cuts[1:]
		}
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				record(i)
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return nil, false
			}
			stack = stack[:len(stack)-1]
			record(i)
		default:
			// Possible end of a number or of true/false/null.
			if c >= '0' && c <= '9' || c == 'e' || c == 'l' {
				record(i)
			}
		}
	}

	for i := len(cuts) - 1; i >= 0; i-- {
		candidate := closeDelimiters(data[:cuts[i].end], cuts[i].stack)
		if doc, ok := parseDocument(candidate); ok {
			return doc, true
		}
	}
	return nil, false
}

// closeDelimiters appends the closing delimiter for every still-open one,
// innermost first, after trimming a trailing comma.
func closeDelimiters(prefix []byte, stack []byte) []byte {
	out := bytes.TrimRight(prefix, " \t\r\n")
	out = bytes.TrimSuffix(out, []byte(","))
	closed := append([]byte(nil), out...)
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			closed = append(closed, '}')
		case '[':
			closed = append(closed, ']')
		}
	}
	return closed
}

// mergeObjectLines salvages files that are line-oriented in practice:
// every parseable object line is merged into one document, unparseable
// lines are skipped. Succeeds when at least one line parses.
func mergeObjectLines(data []byte) (format.Document, bool) {
	doc := format.Document{}
	salvaged := false
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var obj format.Document
		if err := json.Unmarshal(line, &obj); err != nil {
			continue
		}
		for k, val := range obj {
			doc[k] = val
		}
		salvaged = true
	}
	if !salvaged {
		return nil, false
	}
	return doc, true
}

// parseRecords reads the whole file permissively: first row is the header,
// ragged rows are zipped against it.
func parseRecords(data []byte) ([]format.Record, bool) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, false
	}

	var records []format.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			return records, true
		}
		if err != nil {
			return nil, false
		}
		records = append(records, zipRow(header, row))
	}
}

// salvageRows parses the file line by line, skipping rows that fail to
// tokenize on their own. The header is the first parseable line.
func salvageRows(data []byte) ([]format.Record, bool) {
	var (
		header  []string
		records []format.Record
	)
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.FieldsPerRecord = -1
		row, err := r.Read()
		if err != nil {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		records = append(records, zipRow(header, row))
	}
	if header == nil {
		return nil, false
	}
	return records, true
}

// zipRow pairs row values with header fields, ignoring surplus on either
// side of a ragged row.
func zipRow(header, row []string) format.Record {
	rec := make(format.Record, len(header))
	for i, field := range header {
		if i < len(row) {
			rec[field] = row[i]
		}
	}
	return rec
}
