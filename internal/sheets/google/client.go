// Package google implements sheets.Client on the Google Sheets v4 API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/JakeFAU/a11y-tracker/internal/sheets"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Config selects credentials. With TokenFile set, CredentialsFile must be an
// OAuth client secret and the token is the stored user grant. With only
// CredentialsFile set it is treated as a service account key. With neither,
// application default credentials are used.
type Config struct {
	CredentialsFile string
	TokenFile       string
	// Endpoint overrides the API base URL; requests go out unauthenticated
	// through HTTPClient. Used against local fakes.
	Endpoint   string
	HTTPClient *http.Client
}

// Client talks to the Sheets API.
type Client struct {
	svc *sheetsapi.Service
}

var _ sheets.Client = (*Client)(nil)

// New builds a Client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func clientOptions(ctx context.Context, cfg Config) ([]option.ClientOption, error) {
	switch {
	case cfg.Endpoint != "":
		opts := []option.ClientOption{option.WithEndpoint(cfg.Endpoint)}
		if cfg.HTTPClient != nil {
			return append(opts, option.WithHTTPClient(cfg.HTTPClient)), nil
		}
		return append(opts, option.WithoutAuthentication()), nil
	case cfg.TokenFile != "":
		secret, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read client secret: %w", err)
		}
		oauthCfg, err := googleoauth.ConfigFromJSON(secret, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse client secret: %w", err)
		}
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(raw, &tok); err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		return []option.ClientOption{option.WithTokenSource(oauthCfg.TokenSource(ctx, &tok))}, nil
	case cfg.CredentialsFile != "":
		return []option.ClientOption{
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(sheetsapi.SpreadsheetsScope),
		}, nil
	default:
		return []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}, nil
	}
}

// SheetTitles implements sheets.Client.
func (c *Client) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err)
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// AddSheet implements sheets.Client.
func (c *Client) AddSheet(ctx context.Context, spreadsheetID, title string, index int) error {
	props := &sheetsapi.SheetProperties{Title: title}
	if index >= 0 {
		props.Index = int64(index)
		props.ForceSendFields = []string{"Index"}
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{AddSheet: &sheetsapi.AddSheetRequest{Properties: props}}},
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return classify(err)
}

// ClearValues implements sheets.Client.
func (c *Client) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheetsapi.ClearValuesRequest{}).
		Context(ctx).
		Do()
	return classify(err)
}

// AppendValues implements sheets.Client.
func (c *Client) AppendValues(ctx context.Context, spreadsheetID, rng string, rows [][]any, input sheets.ValueInput) error {
	_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption(string(input)).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return classify(err)
}

// GetValues implements sheets.Client.
func (c *Client) GetValues(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	return resp.Values, nil
}

// UpdateValues implements sheets.Client.
func (c *Client) UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]any, input sheets.ValueInput) error {
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption(string(input)).
		Context(ctx).
		Do()
	return classify(err)
}

// CreateSpreadsheet implements sheets.Client.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (tracker.Spreadsheet, error) {
	resp, err := c.svc.Spreadsheets.Create(&sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return tracker.Spreadsheet{}, classify(err)
	}
	return tracker.Spreadsheet{ID: resp.SpreadsheetId, URL: resp.SpreadsheetUrl}, nil
}

// classify marks client-side API errors as permanent. Rate limiting, request
// timeouts, server errors and transport failures stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests,
		apiErr.Code == http.StatusRequestTimeout,
		apiErr.Code >= http.StatusInternalServerError:
		return err
	default:
		return sheets.Permanent(err)
	}
}
