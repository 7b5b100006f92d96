package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"autostats/config"
	"autostats/models"
)

// SheetStore reads the last recorded timestamp of a sheet and appends rows to it.
type SheetStore interface {
	// LastTimestamp returns nil when the sheet has no data rows.
	LastTimestamp(ctx context.Context, sheet string) (*time.Time, error)
	AppendRow(ctx context.Context, sheet string, row models.Row) error
}

// Layouts seen in column A: our own ISO writes, and what Sheets renders
// once USER_ENTERED has turned a cell into a date value.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
}

type SheetsService struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetsService authenticates with the service account credentials in cfg.
func NewSheetsService(ctx context.Context, cfg config.SheetsConfig) (*SheetsService, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("GOOGLE_SHEET_ID is not set")
	}
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("google service account credentials are not set")
	}

	jwtCfg := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}

	return NewSheetsServiceWithOptions(ctx, cfg.SpreadsheetID, option.WithHTTPClient(jwtCfg.Client(ctx)))
}

// NewSheetsServiceWithOptions is used by tests to point the client at a local endpoint.
func NewSheetsServiceWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsService, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsService{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (s *SheetsService) LastTimestamp(ctx context.Context, sheet string) (*time.Time, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSheetRead, sheet, err)
	}
	return lastTimestamp(sheet, resp.Values), nil
}

// lastTimestamp picks the last non-empty cell below the header row.
func lastTimestamp(sheet string, values [][]interface{}) *time.Time {
	if len(values) < 2 {
		return nil
	}

	for i := len(values) - 1; i >= 1; i-- {
		if len(values[i]) == 0 {
			continue
		}
		cell := strings.TrimSpace(fmt.Sprint(values[i][0]))
		if cell == "" {
			continue
		}

		ts, ok := parseTimestamp(cell)
		if !ok {
			log.Warn().Str("sheet", sheet).Str("value", cell).Msg("Unparseable last timestamp, treating sheet as stale")
			return nil
		}
		return &ts
	}
	return nil
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *SheetsService) AppendRow(ctx context.Context, sheet string, row models.Row) error {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, sheet, &sheets.ValueRange{
		Values: [][]interface{}{cells},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSheetWrite, sheet, err)
	}

	log.Info().Str("sheet", sheet).Int("cells", len(row)).Msg("Data appended to sheet")
	return nil
}
