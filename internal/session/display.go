package session

import (
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/scope"
)

const (
	maxDisplayName      = 30
	displayNameEllipsis = ".."
)

// DisplayName returns a short human-readable name for a crawl of target.
func DisplayName(target *model.Target) string {
	if target == nil {
		return ""
	}
	switch {
	case target.SubtreeOnly():
		return abbreviateMiddle(subtreePrefix(target))
	case target.Context() != nil:
		return "context: " + target.Context().Name()
	case target.ScopeMode() == model.ScopeModeInScopeOnly:
		return "all in scope"
	default:
		return abbreviateMiddle(target.StartURI().String())
	}
}

func subtreePrefix(target *model.Target) string {
	v, err := scope.NewPrefixValidator(target.StartURI())
	if err != nil {
		return target.StartURI().String()
	}
	return v.Prefix()
}

// abbreviateMiddle shortens s to maxDisplayName bytes by replacing its middle.
func abbreviateMiddle(s string) string {
	if len(s) <= maxDisplayName {
		return s
	}
	keep := maxDisplayName - len(displayNameEllipsis)
	head := keep/2 + keep%2
	tail := len(s) - keep/2
	return s[:head] + displayNameEllipsis + s[tail:]
}
