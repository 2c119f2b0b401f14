package incident

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Source delivers the raw incident table. Name identifies the source for
// caching and logging; two Sources with the same Name are the same data.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*Batch, error)
}

// SourceOptions configure how a source locator is opened.
type SourceOptions struct {
	// Location is used for timestamps without an explicit offset.
	Location *time.Location
	// HTTPClient is used for http(s) sources. Defaults to a client with a
	// 30s timeout.
	HTTPClient *http.Client
}

// OpenSource resolves a locator into a Source:
//
//	http://host/api/incidents/    remote CSV or JSON endpoint
//	sqlite://data/eoc.db?table=x  SQLite table (default table "incidents")
//	files/incidents.csv           local .csv, .json or .xlsx file
func OpenSource(locator string, opts SourceOptions) (Source, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	switch {
	case locator == "":
		return nil, fmt.Errorf("empty source locator")
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		return &HTTPSource{URL: locator, Client: client, Location: opts.Location}, nil
	case strings.HasPrefix(locator, "sqlite://"):
		return parseSQLiteLocator(locator, opts.Location)
	default:
		return &FileSource{Path: locator, Location: opts.Location}, nil
	}
}

// FileSource reads a local file. The format is chosen by extension.
type FileSource struct {
	Path     string
	Location *time.Location
}

func (s *FileSource) Name() string { return "file:" + s.Path }

func (s *FileSource) Fetch(ctx context.Context) (*Batch, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".json":
		return DecodeJSON(f, s.Location)
	case ".xlsx":
		return decodeXLSX(f, s.Location)
	default:
		return DecodeCSV(f, s.Location)
	}
}

// decodeXLSX reads the first sheet of a workbook; its first row is the header.
func decodeXLSX(r io.Reader, loc *time.Location) (*Batch, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	return DecodeRecords(rows[0], rows[1:], loc)
}

// HTTPSource fetches the table from a remote endpoint. CSV and JSON bodies
// are both accepted; the format is sniffed from the payload.
type HTTPSource struct {
	URL      string
	Client   *http.Client
	Location *time.Location
}

func (s *HTTPSource) Name() string { return s.URL }

func (s *HTTPSource) Fetch(ctx context.Context) (*Batch, error) {
	body, err := Download(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}
	if sniffJSON(body) {
		return DecodeJSON(bytes.NewReader(body), s.Location)
	}
	return DecodeCSV(bytes.NewReader(body), s.Location)
}

// Download performs a GET and returns the body of a 200 response.
func Download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/csv;q=0.9, */*;q=0.1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
