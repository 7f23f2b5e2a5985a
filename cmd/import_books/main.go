// Command import_books loads a catalog CSV into the library database.
//
// The first row names the columns: title, title_transcription, author,
// publisher, published_date, isbn, pages, price, ndc, acceptance_date,
// acceptance_type, acceptance_source, storage_location, volume_number and
// quantity. Only title is required; with --lookup a row that has an isbn
// but no title is completed from the book information services.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"school-library/config"
	"school-library/isbn"
	"school-library/library"
	"school-library/logging"
)

func main() {
	var (
		configPath string
		lookup     bool
	)
	cmd := &cobra.Command{
		Use:           "import_books <file.csv>",
		Short:         "Import books from a CSV file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			opts := []library.Option{library.WithLogger(logger)}
			if lookup {
				svc, err := isbn.New(isbn.Config{
					Timeout:   cfg.ISBN.Timeout,
					CacheSize: cfg.ISBN.CacheSize,
					NDLURL:    cfg.ISBN.NDLURL,
					OpenBDURL: cfg.ISBN.OpenBDURL,
					GoogleURL: cfg.ISBN.GoogleURL,
				}, logger)
				if err != nil {
					return err
				}
				opts = append(opts, library.WithLookup(svc))
			}
			mgr, err := library.NewLibraryManager(cfg.Database.Path, opts...)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer mgr.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := importCSV(cmd.Context(), mgr, f, os.Stdout, lookup)
			if err != nil {
				return err
			}
			fmt.Printf("\nImport complete: %s imported, %s failed\n",
				color.GreenString("%d", res.imported), color.RedString("%d", res.failed))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "config file path")
	cmd.Flags().BoolVar(&lookup, "lookup", false, "fill rows that only carry an ISBN from the book information services")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

type importResult struct {
	imported int
	failed   int
}

// row maps header names to the fields of one record.
type row map[string]string

// importCSV creates one book per record. Bad rows are reported and
// skipped; a malformed file stops the import.
func importCSV(ctx context.Context, mgr *library.LibraryManager, r io.Reader, out io.Writer, lookup bool) (importResult, error) {
	var res importResult
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if !slices.Contains(header, "title") {
		return res, errors.New(`header must include a "title" column`)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		fields := make(row, len(header))
		for i, v := range rec {
			if i < len(header) {
				fields[header[i]] = strings.TrimSpace(v)
			}
		}

		if lookup && fields["title"] == "" && fields["isbn"] != "" {
			if md, err := mgr.LookupISBN(ctx, fields["isbn"]); err == nil {
				fields.fill(md)
			}
		}
		in, err := fields.input()
		if err == nil {
			var book *library.Book
			book, err = mgr.CreateBook(ctx, library.System, in)
			if err == nil {
				fmt.Fprintf(out, "line %d: %s (ID: %d)\n", line, truncate(book.Title, 50), book.ID)
				res.imported++
				continue
			}
		}
		fmt.Fprintf(out, "line %d: %s %v\n", line, color.RedString("ERROR"), err)
		res.failed++
	}
	return res, nil
}

// fill copies looked-up metadata into the empty fields of a row.
func (r row) fill(md *library.BookMetadata) {
	set := func(k, v string) {
		if r[k] == "" {
			r[k] = v
		}
	}
	set("title", md.Title)
	set("title_transcription", md.TitleTranscription)
	set("author", md.Author)
	set("publisher", md.Publisher)
	set("published_date", md.PublishedDate)
	set("ndc", md.NDC)
	if md.Pages != nil {
		set("pages", strconv.Itoa(*md.Pages))
	}
	if md.Price != nil {
		set("price", strconv.Itoa(*md.Price))
	}
}

func (r row) input() (library.BookInput, error) {
	in := library.BookInput{
		Title:              r["title"],
		TitleTranscription: r["title_transcription"],
		Author:             r["author"],
		Publisher:          r["publisher"],
		ISBN:               r["isbn"],
		NDC:                r["ndc"],
		AcceptanceType:     r["acceptance_type"],
		AcceptanceSource:   r["acceptance_source"],
		StorageLocation:    r["storage_location"],
		VolumeNumber:       r["volume_number"],
	}
	var err error
	if in.PublishedDate, err = r.date("published_date"); err != nil {
		return in, err
	}
	if in.AcceptanceDate, err = r.date("acceptance_date"); err != nil {
		return in, err
	}
	if v := r["pages"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return in, fmt.Errorf("pages: %q is not a number", v)
		}
		in.Pages = &n
	}
	if v := r["price"]; v != "" {
		p, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return in, fmt.Errorf("price: %q is not a number", v)
		}
		in.Price = &p
	}
	if v := r["quantity"]; v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return in, fmt.Errorf("quantity: %q is not a number", v)
		}
		in.Quantity = q
	}
	return in, nil
}

func (r row) date(key string) (*library.Date, error) {
	v := r[key]
	if v == "" {
		return nil, nil
	}
	d, err := library.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &d, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
