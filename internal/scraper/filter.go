package scraper

import (
	"regexp"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/model"
)

// Filter applies the configured exclusion rules to extracted ads. It is a
// pure function of its inputs: order preserving, deterministic, no
// side effects. Pattern compilation errors are configuration-load
// failures, so Apply itself cannot fail.
type Filter struct {
	excludeTopAds bool
	patterns      []*regexp.Regexp
	fields        []string
}

// NewFilter compiles the filter configuration.
func NewFilter(cfg config.FilterConfig) (*Filter, error) {
	patterns, err := cfg.CompilePatterns()
	if err != nil {
		return nil, err
	}
	return &Filter{
		excludeTopAds: cfg.ExcludeTopAds,
		patterns:      patterns,
		fields:        cfg.Fields(),
	}, nil
}

// Apply returns the ads that survive the exclusion rules, preserving
// relative order, plus the number of excluded ads. Top ads are dropped
// first, then any remaining ad with a field matching an exclude pattern.
func (f *Filter) Apply(ads []model.AdRecord) (kept []model.AdRecord, excluded int) {
	kept = make([]model.AdRecord, 0, len(ads))
	for _, ad := range ads {
		if f.Excluded(ad) {
			excluded++
			continue
		}
		kept = append(kept, ad)
	}
	return kept, excluded
}

// Excluded reports whether a single ad is dropped by the rules.
func (f *Filter) Excluded(ad model.AdRecord) bool {
	if f.excludeTopAds && ad.IsTopAd {
		return true
	}
	for _, re := range f.patterns {
		for _, field := range f.fields {
			if re.MatchString(fieldValue(ad, field)) {
				return true
			}
		}
	}
	return false
}

func fieldValue(ad model.AdRecord, field string) string {
	switch field {
	case config.FieldTitle:
		return ad.Title
	case config.FieldDescription:
		return ad.Description
	case config.FieldLocation:
		return ad.Location
	}
	return ""
}
