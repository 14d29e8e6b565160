// Package corpcode resolves company names and stock codes to DART corp codes
// using the provider's bulk company directory.
package corpcode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aristath/dart-ebitda/internal/domain"
)

// Directory is an immutable index over one directory snapshot.
type Directory struct {
	byName   map[string]*domain.CompanyRecord
	names    []string // lowercase names in first-insertion order
	byTicker map[string]*domain.CompanyRecord
	records  int
	asOf     time.Time
}

type directoryEntry struct {
	CorpCode   string `xml:"corp_code"`
	CorpName   string `xml:"corp_name"`
	StockCode  string `xml:"stock_code"`
	ModifyDate string `xml:"modify_date"`
}

// ParseDirectory builds a Directory from a corpCode.xml document.
// Entries without a corp code are skipped. When two entries share a name the
// later one wins, but the name keeps its original position in the scan order.
func ParseDirectory(doc []byte, asOf time.Time) (*Directory, error) {
	d := &Directory{
		byName:   make(map[string]*domain.CompanyRecord),
		byTicker: make(map[string]*domain.CompanyRecord),
		asOf:     asOf,
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.InvalidResponseError{Reason: fmt.Sprintf("malformed company directory: %v", err)}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "list" {
			continue
		}

		var entry directoryEntry
		if err := dec.DecodeElement(&entry, &start); err != nil {
			return nil, &domain.InvalidResponseError{Reason: fmt.Sprintf("malformed company directory entry: %v", err)}
		}
		d.add(entry)
	}

	if !sawRoot {
		return nil, &domain.InvalidResponseError{Reason: "company directory has no elements"}
	}
	return d, nil
}

func (d *Directory) add(entry directoryEntry) {
	record := &domain.CompanyRecord{
		CorpCode:   strings.TrimSpace(entry.CorpCode),
		Name:       strings.TrimSpace(entry.CorpName),
		ModifiedAt: strings.TrimSpace(entry.ModifyDate),
	}
	if record.CorpCode == "" {
		return
	}
	if stock := strings.TrimSpace(entry.StockCode); stock != "" {
		record.StockCode = &stock
	}
	d.records++

	if record.Name != "" {
		key := strings.ToLower(record.Name)
		if _, seen := d.byName[key]; !seen {
			d.names = append(d.names, key)
		}
		d.byName[key] = record
	}
	if record.Listed() {
		d.byTicker[*record.StockCode] = record
	}
}

// Lookup finds the company for query:
//  1. a 6-digit query is tried as a stock code;
//  2. then as an exact, case-insensitive name;
//  3. then the first name, in directory order, that contains the query or is
//     contained in it.
//
// Step 3 returns whichever candidate appears first in the directory, not the
// closest one.
func (d *Directory) Lookup(query string) (domain.CompanyRecord, bool) {
	if query == "" {
		return domain.CompanyRecord{}, false
	}

	if isTicker(query) {
		if record, ok := d.byTicker[query]; ok {
			return *record, true
		}
	}

	lower := strings.ToLower(query)
	if record, ok := d.byName[lower]; ok {
		return *record, true
	}

	for _, name := range d.names {
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return *d.byName[name], true
		}
	}

	return domain.CompanyRecord{}, false
}

// Len returns the number of records with a corp code.
func (d *Directory) Len() int { return d.records }

// Names returns the number of distinct names indexed.
func (d *Directory) Names() int { return len(d.names) }

// Tickers returns the number of listed companies indexed.
func (d *Directory) Tickers() int { return len(d.byTicker) }

// AsOf returns when the underlying snapshot was taken.
func (d *Directory) AsOf() time.Time { return d.asOf }

func isTicker(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
