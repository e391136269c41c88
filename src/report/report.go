// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package report renders diagnostic results as JSON or as an Excel
// workbook.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// Kind names the diagnostic that produced a [Record].
type Kind string

// Diagnostic kinds.
const (
	KindTrial   Kind = "trial"
	KindHealth  Kind = "health"
	KindDNSTest Kind = "dns_test"
)

// Record is one diagnostic outcome.
type Record struct {
	Time      time.Time     `json:"time"`
	Kind      Kind          `json:"kind"`
	Interface string        `json:"interface,omitempty"`
	Target    string        `json:"target"`
	Result    string        `json:"result"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration_ns"`
}

// SheetName is the worksheet written by [WriteXLSX].
const SheetName = "Results"

var header = []any{"Time", "Kind", "Interface", "Target", "Result", "Success", "Duration (ms)"}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteXLSX writes records to w as a workbook with a single sheet.
func WriteXLSX(w io.Writer, records []Record) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveXLSX writes records to a workbook at path.
func SaveXLSX(path string, records []Record) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func build(records []Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("report: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("report: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("report: %w", err)
		}
		row := []any{
			r.Time.UTC().Format(time.RFC3339),
			string(r.Kind),
			r.Interface,
			r.Target,
			r.Result,
			r.Success,
			r.Duration.Milliseconds(),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: %w", err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 22)
	_ = f.SetColWidth(SheetName, "D", "D", 40)
	_ = f.SetColWidth(SheetName, "E", "E", 20)
	return f, nil
}
