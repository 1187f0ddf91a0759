package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"library-backend/internal/platform/apperr"
)

var importColumns = []string{"title", "author", "isbn", "published_date", "copies_available"}

type ImportBooksResponse struct {
	Total   int               `json:"total"`
	OkCount int               `json:"ok_count"`
	NgCount int               `json:"ng_count"`
	Results []ImportRowResult `json:"results"`
}

type ImportRowResult struct {
	Row    int     `json:"row"` // ヘッダ行を除いたデータ行番号（1始まり）
	Ok     bool    `json:"ok"`
	Error  *string `json:"error,omitempty"`
	BookID *string `json:"book_id,omitempty"`
	ISBN   *string `json:"isbn,omitempty"`
}

// ImportBooksCSV creates one book per data row. The first row is a header naming
// the columns in any order. Input may be UTF-8 (with or without BOM) or UTF-16 with BOM.
// A bad row is reported and skipped; only unreadable input aborts the import.
func (s *Service) ImportBooksCSV(ctx context.Context, r io.Reader) (ImportBooksResponse, error) {
	// BOM があれば UTF-8/UTF-16 を自動判別、なければ UTF-8 とみなす
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return ImportBooksResponse{}, apperr.Invalid("csv header row is missing")
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range importColumns {
		if _, ok := idx[col]; !ok {
			return ImportBooksResponse{}, apperr.Invalid(fmt.Sprintf("csv column %q is missing", col))
		}
	}

	var out ImportBooksResponse
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read csv row %d: %w", row, err)
		}
		out.Total++

		res := ImportRowResult{Row: row}
		if b, err := s.importRow(ctx, rec, idx); err != nil {
			msg := err.Error()
			if api, ok := apperr.As(err); ok {
				msg = api.Message
			}
			res.Error = &msg
			out.NgCount++
		} else {
			res.Ok = true
			res.BookID = &b.ID
			res.ISBN = &b.ISBN
			out.OkCount++
		}
		out.Results = append(out.Results, res)
	}

	s.log.WithFields(logrus.Fields{"total": out.Total, "ok": out.OkCount, "ng": out.NgCount}).Info("books imported")
	return out, nil
}

func (s *Service) importRow(ctx context.Context, rec []string, idx map[string]int) (BookResponse, error) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	copies, err := strconv.Atoi(get("copies_available"))
	if err != nil {
		return BookResponse{}, apperr.Invalid("copies_available must be a number")
	}
	return s.CreateBook(ctx, CreateBookRequest{
		Title:           get("title"),
		Author:          get("author"),
		ISBN:            get("isbn"),
		PublishedDate:   get("published_date"),
		CopiesAvailable: &copies,
	})
}
