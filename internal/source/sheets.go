// Package source reads rule tables and appends unmatched log rows, either
// from Google Sheets or from CSV files in a directory.
package source

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"keyword_relay/internal/unmatched"
)

const (
	DefaultRulesRange     = "Rules!A:D"
	DefaultUnmatchedRange = "Unmatched!A:D"
)

// NewSheetsService builds a Sheets client from a service account key, given
// either as a file path or as inline JSON. Extra options are appended, which
// tests use to point the client at a local server.
func NewSheetsService(ctx context.Context, credentialsFile, credentialsJSON string, opts ...option.ClientOption) (*sheets.Service, error) {
	var clientOpts []option.ClientOption
	switch {
	case credentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}
	clientOpts = append(clientOpts, option.WithScopes(sheets.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return svc, nil
}

// Sheets treats each spreadsheet id as a table id. Rules are read from
// rulesRange and unmatched messages are appended to logRange of the same
// spreadsheet.
type Sheets struct {
	svc        *sheets.Service
	rulesRange string
	logRange   string
}

func NewSheets(svc *sheets.Service, rulesRange, logRange string) *Sheets {
	if rulesRange == "" {
		rulesRange = DefaultRulesRange
	}
	if logRange == "" {
		logRange = DefaultUnmatchedRange
	}
	return &Sheets{svc: svc, rulesRange: rulesRange, logRange: logRange}
}

func (s *Sheets) FetchRows(ctx context.Context, tableID string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(tableID, s.rulesRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from spreadsheet %s: %w", s.rulesRange, tableID, err)
	}
	return stringRows(resp.Values), nil
}

func (s *Sheets) AppendEntry(ctx context.Context, e unmatched.Entry) error {
	row := e.Row()
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}

	_, err := s.svc.Spreadsheets.Values.Append(e.TableID, s.logRange, &sheets.ValueRange{
		Values: [][]interface{}{cells},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s in spreadsheet %s: %w", s.logRange, e.TableID, err)
	}
	return nil
}

// stringRows flattens the API's loosely typed cells. The API omits trailing
// empty cells, so rows can be shorter than the requested range.
func stringRows(values [][]interface{}) [][]string {
	rows := make([][]string, 0, len(values))
	for _, v := range values {
		row := make([]string, len(v))
		for i, cell := range v {
			if cell != nil {
				row[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, row)
	}
	return rows
}
