package model

// AffinityProfile summarizes how often a user watched each category and tag.
type AffinityProfile struct {
	WatchedCategories map[string]int64
	WatchedTags       map[string]int64
	TotalWatched      int64
}

// NewAffinityProfile returns an empty profile.
func NewAffinityProfile() *AffinityProfile {
	return &AffinityProfile{
		WatchedCategories: make(map[string]int64),
		WatchedTags:       make(map[string]int64),
	}
}

// BuildAffinityProfile aggregates one watch per entry of watched.
func BuildAffinityProfile(watched []Video) *AffinityProfile {
	p := NewAffinityProfile()
	for _, v := range watched {
		p.Add(v)
	}
	return p
}

// Add records a single watch of v.
func (p *AffinityProfile) Add(v Video) {
	p.TotalWatched++
	if v.Category != "" {
		p.WatchedCategories[v.Category]++
	}
	seen := make(map[string]struct{}, len(v.Tags))
	for _, t := range v.Tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		p.WatchedTags[t]++
	}
}

// Empty reports whether the profile carries no watch history.
func (p *AffinityProfile) Empty() bool {
	return p == nil || (p.TotalWatched == 0 && len(p.WatchedCategories) == 0 && len(p.WatchedTags) == 0)
}
