package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
)

// intentRules is scanned in order; comparison comes before synthesis
// because comparison phrasing is the more specific of the two and would
// otherwise be swallowed by the synthesis keywords.
type intentRule struct {
	intent   domain.Intent
	keywords []string
}

var intentRules = []intentRule{
	{
		intent: domain.IntentComparison,
		keywords: []string{
			"compare", "comparison", "differences between", "similarities between",
			"versus", " vs ", "vs.", "compared to", "contrast",
		},
	},
	{
		intent: domain.IntentSynthesis,
		keywords: []string{
			"synthesis", "synthesize", "literature review", "review of the literature",
			"summarize all", "across all", "all the papers", "all the documents",
			"overview", "state of the art", "big picture",
		},
	},
}

// sectionRules is scanned in order. Every keyword belongs to exactly
// one tag, so a question can never resolve differently depending on
// table order alone.
type sectionRule struct {
	section  domain.Section
	keywords []string
}

var sectionRules = []sectionRule{
	{domain.SectionMethods, []string{"method", "methodology", "protocol", "procedure", "materials"}},
	{domain.SectionResults, []string{"result", "findings", "observations", "measurements"}},
	{domain.SectionDiscussion, []string{"discussion", "interpretation", "implications", "analysis"}},
	{domain.SectionConclusion, []string{"conclusion", "takeaway", "future work", "perspectives"}},
	{domain.SectionIntroduction, []string{"introduction", "background", "motivation", "context"}},
	{domain.SectionAbstract, []string{"abstract", "summary", "synopsis"}},
}

// namePart matches a single capitalized surname, accents included.
const namePart = `[A-Z][a-zà-öø-ÿ]+`

var authorMentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:by|according to|work(?:s)? of|study by|paper by|article by|research by|thesis of)\s+(` + namePart + `)`),
	regexp.MustCompile(`(` + namePart + `)\s+et\s+al\.?`),
	regexp.MustCompile(`\b(` + namePart + `)\b`),
}

var authorPairPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:compare|comparison|differences between|similarities between|contrast)[^A-Z]*(` + namePart + `)\s+(?:and|et|vs\.?|versus)\s+(` + namePart + `)`),
	regexp.MustCompile(`(` + namePart + `)\s+(?:and|et|vs\.?|versus)\s+(` + namePart + `)`),
}

const minAuthorNameLength = 3

// EntityDetector turns free-form question text into an intent, an
// optional section of interest and optional author mentions. Author
// candidates only count once the live corpus confirms them. Detection
// never fails: absence of a match is a normal, silent outcome.
type EntityDetector struct {
	authors ports.AuthorIndex
}

func NewEntityDetector(authors ports.AuthorIndex) *EntityDetector {
	return &EntityDetector{authors: authors}
}

// Classify resolves the query intent from the ordered rule table.
func (d *EntityDetector) Classify(question string) domain.Intent {
	lowered := strings.ToLower(question)
	for _, rule := range intentRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				slog.Debug("intent_detected", "intent", rule.intent, "keyword", keyword)
				return rule.intent
			}
		}
	}
	return domain.IntentStandard
}

// DetectSection returns the section tag the question asks about, or ""
// when no keyword matches.
func (d *EntityDetector) DetectSection(question string) domain.Section {
	lowered := strings.ToLower(question)
	for _, rule := range sectionRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				slog.Debug("section_detected", "section", rule.section, "keyword", keyword)
				return rule.section
			}
		}
	}
	return ""
}

// DetectAuthor returns the first corpus-validated author name mentioned
// in the question, lowercased, or "" when none validates.
func (d *EntityDetector) DetectAuthor(ctx context.Context, question string) string {
	for _, pattern := range authorMentionPatterns {
		for _, match := range pattern.FindAllStringSubmatch(question, -1) {
			if name, ok := d.validate(ctx, match[1]); ok {
				slog.Debug("author_detected", "author", name)
				return name
			}
		}
	}
	return ""
}

// DetectAuthors extracts the distinct corpus-validated names from
// paired-name phrasing, in detection order. Comparison mode needs at
// least two of them to proceed.
func (d *EntityDetector) DetectAuthors(ctx context.Context, question string) []string {
	var detected []string
	seen := make(map[string]struct{})
	for _, pattern := range authorPairPatterns {
		for _, match := range pattern.FindAllStringSubmatch(question, -1) {
			for _, candidate := range match[1:] {
				name, ok := d.validate(ctx, candidate)
				if !ok {
					continue
				}
				if _, dup := seen[name]; dup {
					continue
				}
				seen[name] = struct{}{}
				detected = append(detected, name)
			}
		}
	}
	slog.Debug("comparison_authors_detected", "authors", detected)
	return detected
}

func (d *EntityDetector) validate(ctx context.Context, candidate string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(candidate))
	if len([]rune(name)) < minAuthorNameLength {
		return "", false
	}
	ok, err := d.authors.AuthorExists(ctx, name)
	if err != nil {
		// Index trouble must not fail the query; the candidate is
		// simply not usable as a filter.
		slog.Warn("author_lookup_failed", "candidate", name, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return name, true
}
