// Package model defines the shared data structures of the scraper.
package model

// AdRecord is one scraped classified listing as it appears on a search
// result page.
//
// ID is the listing's identifier on the source site. It is extracted from
// the markup, never invented, so two scrapes of the same ad always carry
// the same ID. Everything else is display data carried along for
// notifications and auditing.
type AdRecord struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Price       string `json:"price,omitempty"`
	Posted      string `json:"posted,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IsTopAd     bool   `json:"is_top_ad,omitempty"`
}
