// Package classify decides whether a post is airdrop-related by
// substring matching against a fixed keyword set.
package classify

import "strings"

// DefaultKeywords is the built-in airdrop vocabulary, checked in order.
var DefaultKeywords = []string{
	"airdrop", "airdrops", "air drop", "air drops",
	"free tokens", "free crypto", "claim", "claiming",
	"distribution", "reward", "rewards", "bonus",
	"giveaway", "giveaways", "contest", "competition",
	"launch", "launching", "new token", "new coin",
	"listing", "new listing", "trading", "trade",
	"stake", "staking", "farm", "farming",
	"liquidity", "pool", "mining", "yield",
}

// KeywordSet is an ordered set of lowercase substrings. It is built once
// at startup and never mutated afterwards.
type KeywordSet struct {
	keywords []string
}

// NewKeywordSet normalizes the given terms: lowercased, trimmed, empty
// entries and duplicates dropped, first-seen order preserved.
func NewKeywordSet(terms []string) KeywordSet {
	seen := make(map[string]struct{}, len(terms))
	keywords := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		keywords = append(keywords, t)
	}
	return KeywordSet{keywords: keywords}
}

// Keywords returns the normalized terms in match order.
func (ks KeywordSet) Keywords() []string {
	out := make([]string, len(ks.keywords))
	copy(out, ks.keywords)
	return out
}

// Len returns the number of keywords in the set.
func (ks KeywordSet) Len() int {
	return len(ks.keywords)
}

// Classify reports whether text contains any keyword and returns every
// matched keyword in set order. It is pure: the same text and set always
// yield the same result. Empty text never matches.
func (ks KeywordSet) Classify(text string) (bool, []string) {
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range ks.keywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched
}
