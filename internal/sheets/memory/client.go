// Package memory provides an in-memory sheets.Client for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/a11y-tracker/internal/sheets"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Operation names used by Calls and FailNext.
const (
	OpTitles   = "titles"
	OpAddSheet = "add_sheet"
	OpClear    = "clear"
	OpAppend   = "append"
	OpGet      = "get"
	OpUpdate   = "update"
	OpCreate   = "create"
)

// Call records one client invocation.
type Call struct {
	Op            string
	SpreadsheetID string
	Range         string
	Rows          int
	Input         sheets.ValueInput
}

type book struct {
	order []string
	tabs  map[string][][]string
}

// Client keeps spreadsheets in memory. Cells are stored as strings.
type Client struct {
	mu      sync.Mutex
	books   map[string]*book
	calls   []Call
	fail    map[string][]error
	created int
}

// New returns an empty Client.
func New() *Client {
	return &Client{
		books: make(map[string]*book),
		fail:  make(map[string][]error),
	}
}

var _ sheets.Client = (*Client)(nil)

// Seed registers a spreadsheet with the given tabs.
func (c *Client) Seed(spreadsheetID string, titles ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &book{tabs: make(map[string][][]string)}
	for _, t := range titles {
		b.order = append(b.order, t)
		b.tabs[t] = nil
	}
	c.books[spreadsheetID] = b
}

// FailNext queues errors returned by the next calls of op, one per call.
func (c *Client) FailNext(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[op] = append(c.fail[op], errs...)
}

// Calls returns a copy of the call log.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallCount counts logged calls of op.
func (c *Client) CallCount(op string) int {
	n := 0
	for _, call := range c.Calls() {
		if call.Op == op {
			n++
		}
	}
	return n
}

// Values returns a copy of a tab's cells.
func (c *Client) Values(spreadsheetID, title string) [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[spreadsheetID]
	if !ok {
		return nil
	}
	out := make([][]string, len(b.tabs[title]))
	for i, row := range b.tabs[title] {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Titles returns the tab names of a spreadsheet in order.
func (c *Client) Titles(spreadsheetID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.books[spreadsheetID]; ok {
		return append([]string(nil), b.order...)
	}
	return nil
}

// SheetTitles implements sheets.Client.
func (c *Client) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, Call{Op: OpTitles, SpreadsheetID: spreadsheetID}); err != nil {
		return nil, err
	}
	b, err := c.book(spreadsheetID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), b.order...), nil
}

// AddSheet implements sheets.Client.
func (c *Client) AddSheet(ctx context.Context, spreadsheetID, title string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, Call{Op: OpAddSheet, SpreadsheetID: spreadsheetID, Range: title}); err != nil {
		return err
	}
	b, err := c.book(spreadsheetID)
	if err != nil {
		return err
	}
	if _, ok := b.tabs[title]; ok {
		return sheets.Permanent(fmt.Errorf("sheet %q already exists", title))
	}
	b.tabs[title] = nil
	if index < 0 || index >= len(b.order) {
		b.order = append(b.order, title)
		return nil
	}
	b.order = append(b.order[:index], append([]string{title}, b.order[index:]...)...)
	return nil
}

// ClearValues implements sheets.Client.
func (c *Client) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, Call{Op: OpClear, SpreadsheetID: spreadsheetID, Range: rng}); err != nil {
		return err
	}
	b, title, a, err := c.resolve(spreadsheetID, rng)
	if err != nil {
		return err
	}
	grid := b.tabs[title]
	for r := a.startRow; r < len(grid) && r <= a.endRow; r++ {
		for col := a.startCol; col < len(grid[r]) && col <= a.endCol; col++ {
			grid[r][col] = ""
		}
	}
	b.tabs[title] = trim(grid)
	return nil
}

// AppendValues implements sheets.Client.
func (c *Client) AppendValues(ctx context.Context, spreadsheetID, rng string, rows [][]any, input sheets.ValueInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := Call{Op: OpAppend, SpreadsheetID: spreadsheetID, Range: rng, Rows: len(rows), Input: input}
	if err := c.begin(ctx, call); err != nil {
		return err
	}
	b, title, a, err := c.resolve(spreadsheetID, rng)
	if err != nil {
		return err
	}
	grid := trim(b.tabs[title])
	b.tabs[title] = write(grid, len(grid), a.startCol, rows)
	return nil
}

// GetValues implements sheets.Client. Trailing empty rows and cells are
// omitted like the remote API does.
func (c *Client) GetValues(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, Call{Op: OpGet, SpreadsheetID: spreadsheetID, Range: rng}); err != nil {
		return nil, err
	}
	b, title, a, err := c.resolve(spreadsheetID, rng)
	if err != nil {
		return nil, err
	}
	grid := b.tabs[title]
	var sub [][]string
	for r := a.startRow; r < len(grid) && r <= a.endRow; r++ {
		var row []string
		for col := a.startCol; col < len(grid[r]) && col <= a.endCol; col++ {
			row = append(row, grid[r][col])
		}
		sub = append(sub, row)
	}
	sub = trim(sub)
	out := make([][]any, len(sub))
	for i, row := range sub {
		out[i] = make([]any, len(row))
		for j, v := range row {
			out[i][j] = v
		}
	}
	return out, nil
}

// UpdateValues implements sheets.Client.
func (c *Client) UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]any, input sheets.ValueInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := Call{Op: OpUpdate, SpreadsheetID: spreadsheetID, Range: rng, Rows: len(rows), Input: input}
	if err := c.begin(ctx, call); err != nil {
		return err
	}
	b, title, a, err := c.resolve(spreadsheetID, rng)
	if err != nil {
		return err
	}
	b.tabs[title] = write(b.tabs[title], a.startRow, a.startCol, rows)
	return nil
}

// CreateSpreadsheet implements sheets.Client. New spreadsheets start with a
// single "Sheet1" tab.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (tracker.Spreadsheet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, Call{Op: OpCreate, Range: title}); err != nil {
		return tracker.Spreadsheet{}, err
	}
	c.created++
	id := "memory-" + strconv.Itoa(c.created)
	c.books[id] = &book{order: []string{"Sheet1"}, tabs: map[string][][]string{"Sheet1": nil}}
	return tracker.Spreadsheet{ID: id, URL: "memory://spreadsheets/" + id}, nil
}

// begin logs the call and pops an injected failure. Callers hold c.mu.
func (c *Client) begin(ctx context.Context, call Call) error {
	c.calls = append(c.calls, call)
	if err := ctx.Err(); err != nil {
		return err
	}
	if queued := c.fail[call.Op]; len(queued) > 0 {
		c.fail[call.Op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (c *Client) book(spreadsheetID string) (*book, error) {
	b, ok := c.books[spreadsheetID]
	if !ok {
		return nil, sheets.Permanent(fmt.Errorf("spreadsheet %q not found", spreadsheetID))
	}
	return b, nil
}

func (c *Client) resolve(spreadsheetID, rng string) (*book, string, area, error) {
	b, err := c.book(spreadsheetID)
	if err != nil {
		return nil, "", area{}, err
	}
	title, cells, err := sheets.SplitRange(rng)
	if err != nil {
		return nil, "", area{}, sheets.Permanent(err)
	}
	if _, ok := b.tabs[title]; !ok {
		return nil, "", area{}, sheets.Permanent(fmt.Errorf("unable to parse range: %s", rng))
	}
	a, err := parseArea(cells)
	if err != nil {
		return nil, "", area{}, sheets.Permanent(err)
	}
	return b, title, a, nil
}

const unbounded = int(^uint(0) >> 1)

// area is a zero-based inclusive rectangle.
type area struct {
	startRow, startCol int
	endRow, endCol     int
}

func parseArea(cells string) (area, error) {
	first, second, ranged := strings.Cut(cells, ":")
	sr, sc, err := parseCell(first, 0, 0)
	if err != nil {
		return area{}, err
	}
	if !ranged {
		return area{startRow: sr, startCol: sc, endRow: sr, endCol: sc}, nil
	}
	er, ec, err := parseCell(second, unbounded, unbounded)
	if err != nil {
		return area{}, err
	}
	return area{startRow: sr, startCol: sc, endRow: er, endCol: ec}, nil
}

// parseCell reads "B12", "B" or "12". Missing parts take the defaults.
func parseCell(ref string, defRow, defCol int) (row, col int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	i := 0
	col = 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	if i == 0 {
		col = defCol
	} else {
		col--
	}
	if i == len(ref) {
		if i == 0 {
			return 0, 0, fmt.Errorf("empty cell reference")
		}
		return defRow, col, nil
	}
	n, err := strconv.Atoi(ref[i:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("bad cell reference %q", ref)
	}
	return n - 1, col, nil
}

func write(grid [][]string, row, col int, rows [][]any) [][]string {
	for i, values := range rows {
		r := row + i
		for len(grid) <= r {
			grid = append(grid, nil)
		}
		for j, v := range values {
			cc := col + j
			for len(grid[r]) <= cc {
				grid[r] = append(grid[r], "")
			}
			grid[r][cc] = fmt.Sprint(v)
		}
	}
	return grid
}

func trim(grid [][]string) [][]string {
	for i, row := range grid {
		end := len(row)
		for end > 0 && row[end-1] == "" {
			end--
		}
		grid[i] = row[:end]
	}
	end := len(grid)
	for end > 0 && len(grid[end-1]) == 0 {
		end--
	}
	return grid[:end]
}
