package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

// Header is written by EnsureHeader and skipped by List.
var Header = []any{"ID", "Item", "Category", "Price", "Created At"}

const columns = "A:E"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger
	now           func() time.Time
}

var _ records.Store = (*Client)(nil)

// Options configure a Sheets client. One of CredentialsJSON or
// CredentialsFile must be set.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = "Items"
	}

	credentials, err := readCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, sheet, logger), nil
}

// NewWithService wraps an existing service. Tests point it at a fake endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        logger.WithComponent(log.ComponentSheets),
		now:           time.Now,
	}
}

func readCredentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Insert appends the item as a new record with a generated id.
func (c *Client) Insert(ctx context.Context, it core.LineItem) (string, error) {
	return c.AppendRecord(ctx, core.Record{
		ID:        uuid.NewString(),
		Item:      it.Item,
		Category:  it.Category,
		Price:     it.Price,
		CreatedAt: c.now().UTC(),
	})
}

// AppendRecord appends rec below the last row and returns the updated range.
func (c *Client) AppendRecord(ctx context.Context, rec core.Record) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.sheet, columns)
	vr := &gsheet.ValueRange{Values: [][]any{recordRow(rec)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", rng, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended record", log.FieldRecordRef, ref, log.FieldCategory, rec.Category)
	return ref, nil
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:E1", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{Header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	return nil
}

// List reads every record from the sheet.
func (c *Client) List(ctx context.Context) ([]core.Record, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.sheet, columns)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRecords(resp.Values), nil
}

func recordRow(rec core.Record) []any {
	return []any{rec.ID, rec.Item, rec.Category, rec.Price.String(), rec.CreatedAt.UTC().Format(time.RFC3339)}
}

// parseRecords converts a values matrix into records. A leading header row
// and rows without an id are skipped; unreadable prices become zero.
func parseRecords(values [][]any) []core.Record {
	out := make([]core.Record, 0, len(values))
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cols[0], "id") {
			continue
		}
		price, ok := core.ParseNumber(core.StringValue(safeGet(cols, 3)))
		if !ok {
			price = decimal.Zero
		}
		created, _ := time.Parse(time.RFC3339, safeGet(cols, 4))
		out = append(out, core.Record{
			ID:        cols[0],
			Item:      safeGet(cols, 1),
			Category:  safeGet(cols, 2),
			Price:     price,
			CreatedAt: created,
		})
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
