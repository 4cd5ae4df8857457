package models

import "encoding/json"

// Filter narrows a relay subscription. Tag filters are keyed by bare tag name
// and serialized with the wire-level "#" prefix.
type Filter struct {
	Kinds   []int
	Authors []string
	Tags    map[string][]string
	Since   *int64
	Limit   int
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any)
	if len(f.Kinds) > 0 {
		fields["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		fields["authors"] = f.Authors
	}
	for name, values := range f.Tags {
		fields["#"+name] = values
	}
	if f.Since != nil {
		fields["since"] = *f.Since
	}
	if f.Limit > 0 {
		fields["limit"] = f.Limit
	}
	return json.Marshal(fields)
}

// Matches reports whether an event satisfies every constraint of the filter.
func (f *Filter) Matches(event *Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, event.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, event.Pubkey) {
		return false
	}
	for name, values := range f.Tags {
		matched := false
		for _, value := range event.TagValues(name) {
			if containsString(values, value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.Since != nil && event.CreatedAt < *f.Since {
		return false
	}
	return true
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
