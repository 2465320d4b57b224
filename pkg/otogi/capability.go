package otogi

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	Kinds          []EventKind
	Sources        []EventSource
	RequireArticle bool
	RequireCommand bool
	CommandNames   []string
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if len(i.Sources) > 0 && !sourceAllowed(i.Sources, event.Source) {
		return false
	}
	if i.RequireArticle && event.Article == nil {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil || !containsString(i.CommandNames, normalizeCommandName(event.Command.Name)) {
			return false
		}
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
//
// Sources are routing filters applied by the kernel and are not negotiated.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if i.RequireArticle && !filter.RequireArticle {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 {
		if len(filter.CommandNames) == 0 {
			return false
		}
		normalized := make([]string, 0, len(filter.CommandNames))
		for _, name := range filter.CommandNames {
			normalized = append(normalized, normalizeCommandName(name))
		}
		allowed := make([]string, 0, len(i.CommandNames))
		for _, name := range i.CommandNames {
			allowed = append(allowed, normalizeCommandName(name))
		}
		if !allIncluded(normalized, allowed) {
			return false
		}
	}

	return true
}

// sourceAllowed reports whether source matches at least one filter entry.
// Empty filter fields act as wildcards.
func sourceAllowed(filters []EventSource, source EventSource) bool {
	for _, filter := range filters {
		if filter.Platform != "" && filter.Platform != source.Platform {
			continue
		}
		if filter.ID != "" && filter.ID != source.ID {
			continue
		}
		return true
	}

	return false
}

func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

func containsString(values []string, target string) bool {
	for _, candidate := range values {
		if normalizeCommandName(candidate) == target {
			return true
		}
	}

	return false
}

// allIncluded reports whether subset is fully contained in allowed.
func allIncluded[T comparable](subset, allowed []T) bool {
	for _, item := range subset {
		found := false
		for _, candidate := range allowed {
			if candidate == item {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
