package planner

// Plan is the ported AdvancedScrapePlan: a subreddit plus its
// computed concrete targets.
type Plan struct {
	Subreddit       string
	Options         Options
	DateRange       DateRange
	ComputedTargets []Target
}

// BuildPlan expands high-level Options into the concrete targets a
// scraper will execute. It does not enumerate submissions itself,
// only the abstract fetch plan, ported from planner.py's build_plan.
func BuildPlan(subreddit string, options Options, dateRange DateRange) (Plan, error) {
	if err := options.Validate(); err != nil {
		return Plan{}, err
	}

	plan := Plan{Subreddit: subreddit, Options: options, DateRange: dateRange}

	for _, listing := range options.ListingTypes {
		if listing == ListingSearch {
			continue
		}
		if listing == ListingTop || listing == ListingControversial {
			filters := options.TimeFilters
			if len(filters) == 0 {
				filters = []TimeFilter{""}
			}
			for _, tf := range filters {
				plan.ComputedTargets = append(plan.ComputedTargets, Target{
					Kind: TargetSubmissions,
					Submissions: &SubmissionsTarget{
						Subreddit:  subreddit,
						Listing:    listing,
						TimeFilter: optionalTimeFilter(tf),
						Limit:      options.PerListingLimit,
					},
				})
			}
			continue
		}
		plan.ComputedTargets = append(plan.ComputedTargets, Target{
			Kind: TargetSubmissions,
			Submissions: &SubmissionsTarget{
				Subreddit: subreddit,
				Listing:   listing,
				Limit:     options.PerListingLimit,
			},
		})
	}

	if containsListing(options.ListingTypes, ListingSearch) && len(options.SearchQueries) > 0 {
		filters := options.TimeFilters
		if len(filters) == 0 {
			filters = []TimeFilter{""}
		}
		sort := options.SearchSort
		if sort == "" {
			sort = SortNew
		}
		for _, query := range options.SearchQueries {
			for _, tf := range filters {
				plan.ComputedTargets = append(plan.ComputedTargets, Target{
					Kind: TargetSearch,
					Search: &SearchTarget{
						Subreddit:  subreddit,
						Query:      query,
						Sort:       sort,
						TimeFilter: optionalTimeFilter(tf),
						Limit:      options.PerListingLimit,
					},
				})
			}
		}
	}

	for _, username := range options.UserTimelines {
		plan.ComputedTargets = append(plan.ComputedTargets,
			Target{Kind: TargetUserTimeline, UserTimeline: &UserTimelineTarget{
				Username: username, Surface: "submissions", Sort: SortNew, Limit: options.PerListingLimit,
			}},
			Target{Kind: TargetUserTimeline, UserTimeline: &UserTimelineTarget{
				Username: username, Surface: "comments", Sort: SortNew, Limit: options.PerListingLimit,
			}},
		)
	}

	return plan, nil
}

// ExpandToTargets returns the plan's computed targets for execution.
func ExpandToTargets(plan Plan) []Target {
	out := make([]Target, len(plan.ComputedTargets))
	copy(out, plan.ComputedTargets)
	return out
}

func optionalTimeFilter(tf TimeFilter) *TimeFilter {
	if tf == "" {
		return nil
	}
	return &tf
}

func containsListing(listings []ListingType, target ListingType) bool {
	for _, l := range listings {
		if l == target {
			return true
		}
	}
	return false
}
