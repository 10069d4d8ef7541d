// Package planner ports the abstract scrape-planning layer from
// scraping/reddit/planner.py and scraping/reddit/options.py: it turns
// a job's declarative params into a list of concrete fetch targets
// the external scraper collaborator executes.
package planner

import (
	"fmt"
	"time"
)

// ListingType is a Reddit subreddit listing kind.
type ListingType string

const (
	ListingNew           ListingType = "new"
	ListingHot           ListingType = "hot"
	ListingTop           ListingType = "top"
	ListingRising        ListingType = "rising"
	ListingControversial ListingType = "controversial"
	ListingSearch        ListingType = "search"
)

// TimeFilter narrows a TOP/CONTROVERSIAL listing or a search query.
type TimeFilter string

const (
	TimeHour  TimeFilter = "hour"
	TimeDay   TimeFilter = "day"
	TimeWeek  TimeFilter = "week"
	TimeMonth TimeFilter = "month"
	TimeYear  TimeFilter = "year"
	TimeAll   TimeFilter = "all"
)

// SortMode orders a listing or search result set.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortHot       SortMode = "hot"
	SortTop       SortMode = "top"
	SortNew       SortMode = "new"
	SortComments  SortMode = "comments"
)

// CommentHarvestMode controls how deep comment expansion goes.
type CommentHarvestMode string

const (
	HarvestPostOnly     CommentHarvestMode = "post_only"
	HarvestTopLevelOnly CommentHarvestMode = "top_level_only"
	HarvestAllComments  CommentHarvestMode = "all_comments"
)

// Options is the per-job planning configuration, ported from
// RedditScrapeOptions.
type Options struct {
	IncludeSubmissions bool
	IncludeComments    bool

	ListingTypes []ListingType
	TimeFilters  []TimeFilter

	SearchQueries []string
	SearchSort    SortMode
	KeywordMode   string // "all" or "any"

	UserTimelines []string

	PaginationTarget int
	PerListingLimit  int

	HarvestMode             CommentHarvestMode
	ExpandCommentDepthLimit int

	DedupeOnURI bool
}

// DefaultOptions mirrors RedditScrapeOptions' field defaults.
func DefaultOptions() Options {
	return Options{
		IncludeSubmissions: true,
		IncludeComments:    true,
		ListingTypes:       []ListingType{ListingNew, ListingHot, ListingTop},
		SearchSort:         SortNew,
		KeywordMode:        "all",
		PerListingLimit:    100,
		HarvestMode:        HarvestPostOnly,
		DedupeOnURI:        true,
	}
}

// Validate applies the invariants options.py enforces via pydantic
// validators: a positive per-listing limit, a non-empty listing-type
// set, and SEARCH listings requiring non-empty search queries.
func (o Options) Validate() error {
	if o.PerListingLimit <= 0 {
		return fmt.Errorf("per_listing_limit must be positive")
	}
	if o.PaginationTarget < 0 {
		return fmt.Errorf("pagination_target must be positive if provided")
	}
	if len(o.ListingTypes) == 0 {
		return fmt.Errorf("listing_types cannot be empty")
	}
	for _, lt := range o.ListingTypes {
		if lt == ListingSearch && len(o.SearchQueries) == 0 {
			return fmt.Errorf("SEARCH listing requires non-empty search_queries")
		}
	}
	return nil
}

// DateRange is an inclusive [Start, End] window over post creation
// times, ported from common.date_range.DateRange.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DefaultDateRange returns the trailing-7-days-ending-now window this
// project uses when a job supplies neither post_start_datetime nor
// post_end_datetime. A naive midnight-of-today fallback produces a
// window of a few hours late in the day and nearly 24h early in the
// morning, an artifact of truncating to midnight rather than an
// intentional "partial day" design. Trailing 7 days ending now is the
// only non-degenerate reading consistent with a "last 7 days" default.
func DefaultDateRange(now time.Time) DateRange {
	return DateRange{Start: now.Add(-7 * 24 * time.Hour), End: now}
}
