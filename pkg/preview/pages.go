package preview

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange selects document pages, inclusive on both ends. The zero-ish
// range (0,0) means "all pages" and is the only valid range for video
// inputs; raster inputs only accept (1,1).
type PageRange struct {
	First int
	Last  int
}

// SinglePage is the default range for page-addressable documents.
var SinglePage = PageRange{First: 1, Last: 1}

// AllPages marks an unbounded range.
var AllPages = PageRange{}

// IsAll reports whether the range covers the whole document.
func (p PageRange) IsAll() bool { return p.First == 0 && p.Last == 0 }

// String renders the range as "first-last". This is also the pages element
// of the store fingerprint, so changing it invalidates every stored preview.
func (p PageRange) String() string {
	return strconv.Itoa(p.First) + "-" + strconv.Itoa(p.Last)
}

// ParsePages parses the pages request parameter. Accepted forms are the
// empty string (default, single page), "all", a single page number, and a
// range "n-m". maxPages caps the number of requested pages; zero means
// unbounded.
func ParsePages(s string, maxPages int) (PageRange, error) {
	if s == "" {
		return SinglePage, nil
	}

	if s == "all" {
		if maxPages == 0 {
			return AllPages, nil
		}
		return PageRange{First: 1, Last: maxPages}, nil
	}

	if n, err := strconv.Atoi(s); err == nil && !strings.Contains(s, "-") {
		return checkOrder(PageRange{First: n, Last: n})
	}

	first, last, ok := strings.Cut(s, "-")
	if ok {
		f, ferr := strconv.Atoi(first)
		l, lerr := strconv.Atoi(last)
		if ferr == nil && lerr == nil {
			if maxPages != 0 && l > f+maxPages-1 {
				// The cap bounds the page count, not the page index.
				l = f + maxPages - 1
			}
			return checkOrder(PageRange{First: f, Last: l})
		}
	}

	return PageRange{}, fmt.Errorf(`%w: pages must be a range n-n or "all"`, ErrBadInput)
}

func checkOrder(p PageRange) (PageRange, error) {
	if p.IsAll() {
		return p, nil
	}
	if p.First < 1 || p.Last < p.First {
		return PageRange{}, fmt.Errorf(`%w: pages must be a range n-n or "all"`, ErrBadInput)
	}
	return p, nil
}
