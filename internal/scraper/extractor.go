package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonasehrlich/ek-scraper/internal/model"
)

// ParseError reports a fetched page whose structure was not recognized,
// typically because the site's markup changed. It is surfaced instead of
// returning an empty result, since an empty result is indistinguishable
// from "no new ads".
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// Page is the extraction result for a single fetched page: the ads in
// on-page order and the next page of the result list, if any.
type Page struct {
	URL     string
	Ads     []model.AdRecord
	NextURL string
}

// Markup anchors of the kleinanzeigen.de result list.
const (
	selResultList  = "#srchrslt-adtable"
	selAdItem      = "article.aditem"
	selAdTitle     = ".text-module-begin a"
	selDescription = ".aditem-main--middle--description"
	selLocationPin = `i[class*="icon-pin"]`
	selPrice       = `p[class*="price"]`
	selCalendar    = ".icon-calendar-open"
	selImageBox    = ".imagebox"
	selTopAdIcon   = ".icon-feature-topad"
	selNextPage    = "a.pagination-next"
)

// ExtractPage parses raw page content into ad records. Relative hrefs are
// resolved against pageURL.
func ExtractPage(pageURL string, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Reason: fmt.Sprintf("invalid html: %v", err)}
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Reason: fmt.Sprintf("invalid page url: %v", err)}
	}

	items := doc.Find(selAdItem)
	if items.Length() == 0 && doc.Find(selResultList).Length() == 0 {
		// Neither ads nor the (possibly empty) result list container:
		// this is not a search result page we know how to read.
		return nil, &ParseError{URL: pageURL, Reason: "no recognizable result list, the site markup may have changed"}
	}

	page := &Page{URL: pageURL}
	var parseErr error
	items.EachWithBreak(func(i int, s *goquery.Selection) bool {
		ad, err := extractAd(base, s)
		if err != nil {
			parseErr = &ParseError{URL: pageURL, Reason: fmt.Sprintf("ad %d: %v", i, err)}
			return false
		}
		page.Ads = append(page.Ads, ad)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if href, ok := doc.Find(selNextPage).First().Attr("href"); ok && href != "" {
		page.NextURL = resolveURL(base, href)
	}
	return page, nil
}

func extractAd(base *url.URL, s *goquery.Selection) (model.AdRecord, error) {
	id := strings.TrimSpace(s.AttrOr("data-adid", ""))
	if id == "" {
		return model.AdRecord{}, fmt.Errorf("missing data-adid attribute")
	}
	title := cleanText(s.Find(selAdTitle).First().Text())
	if title == "" {
		return model.AdRecord{}, fmt.Errorf("ad %s: missing title", id)
	}

	ad := model.AdRecord{
		ID:          id,
		URL:         resolveURL(base, s.AttrOr("data-href", "")),
		Title:       title,
		Description: cleanText(s.Find(selDescription).First().Text()),
		Location:    cleanText(s.Find(selLocationPin).First().Parent().Text()),
		Price:       cleanText(s.Find(selPrice).First().Text()),
		ImageURL:    s.Find(selImageBox).First().AttrOr("data-imgsrc", ""),
		IsTopAd:     s.Find(selTopAdIcon).Length() > 0,
	}
	if cal := s.Find(selCalendar).First(); cal.Length() > 0 {
		ad.Posted = cleanText(cal.Parent().Text())
	}
	return ad, nil
}

func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// cleanText trims and collapses the whitespace goquery keeps from the
// markup indentation.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
