package recall

import "github.com/hindsightdb/hindsight/internal/model"

// tagsMatch applies the tag-filter policy to one unit's tags.
func tagsMatch(unitTags, filterTags []string, mode model.TagMatchMode) bool {
	if len(filterTags) == 0 {
		return true
	}
	if len(unitTags) == 0 {
		switch mode {
		case model.TagMatchAny, model.TagMatchAll:
			return true
		default:
			return false
		}
	}
	set := make(map[string]bool, len(unitTags))
	for _, t := range unitTags {
		set[t] = true
	}
	switch mode {
	case model.TagMatchAny, model.TagMatchAnyStrict:
		for _, t := range filterTags {
			if set[t] {
				return true
			}
		}
		return false
	default: // all, all_strict
		for _, t := range filterTags {
			if !set[t] {
				return false
			}
		}
		return true
	}
}
