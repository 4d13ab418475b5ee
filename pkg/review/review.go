// Package review scores formatted web-search output against the user
// question and a reference date, and re-renders the subset worth
// keeping in the model context.
package review

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Entry is one parsed search result with its scores. Index is the
// 1-based position in the original formatted output.
type Entry struct {
	Index          int      `json:"index"`
	Title          string   `json:"title"`
	Snippet        string   `json:"snippet"`
	URL            string   `json:"url"`
	Source         string   `json:"source"`
	RelevanceScore float64  `json:"relevance_score"`
	RecencyScore   float64  `json:"recency_score"`
	FinalScore     float64  `json:"final_score"`
	Reasons        []string `json:"reasons"`
}

// Outcome is the result of reviewing one formatted block.
type Outcome struct {
	Summary         string  `json:"summary"`
	Recommendations []int   `json:"recommendations"`
	Entries         []Entry `json:"entries"`
}

const (
	// scoreThreshold is the minimum final score for an entry to be
	// recommended outright.
	scoreThreshold = 0.4

	// maxRendered caps how many entries the filtered rendering keeps.
	maxRendered = 10
)

var (
	tokenRe = regexp.MustCompile(`[0-9A-Za-z_\p{Han}]+`)

	// Entries as produced by the search tool formatter: a numbered
	// header, a snippet line, an optional link line and a source line,
	// each record terminated by a blank line. Re-parsing RenderFiltered
	// output matches too, but its 💡 reasons line ends up inside the
	// source capture; only raw formatter output goes through review.
	entryRe = regexp.MustCompile(`(?s)\[(\d+)\]\s*(.*?)\n📝\s*(.*?)(?:\n🔗\s*(.*?))?\n📍 (?:Source|来源):\s*(.*?)\n\n`)

	relativeRe = regexp.MustCompile(`(?i)最近|日前|小时|今天|昨日|昨天|本周|本月|刚刚|recently|days? ago|hours? ago|today|yesterday|this week|this month|just now`)
	cjkYearRe  = regexp.MustCompile(`(\d{4})年`)
	bareYearRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// Tokenize lowercases the text and splits it into word or CJK runs,
// discarding single-rune tokens.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if utf8.RuneCountInString(t) > 1 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// RelevanceScore is the Jaccard index of the question's and the
// entry's token sets. Empty sets score 0.
func RelevanceScore(question, title, snippet string) float64 {
	qSet := tokenSet(Tokenize(question))
	dSet := tokenSet(Tokenize(title + " " + snippet))
	if len(qSet) == 0 || len(dSet) == 0 {
		return 0
	}

	inter := 0
	for t := range qSet {
		if _, ok := dSet[t]; ok {
			inter++
		}
	}
	union := len(qSet) + len(dSet) - inter
	return float64(inter) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// RecencyScore rates how well the entry text agrees with the
// reference date: 1.0 for the exact date in either form, 0.8 for a
// relative-recency marker, 0.6 for the reference year, 0.2 for a
// different year, 0.3 when no temporal signal is found.
func RecencyScore(refDate, title, snippet string) float64 {
	text := title + " " + snippet

	if refDate != "" {
		for _, form := range dateForms(refDate) {
			if form != "" && strings.Contains(text, form) {
				return 1.0
			}
		}
	}

	if relativeRe.MatchString(text) {
		return 0.8
	}

	if year, ok := firstYear(text); ok {
		if refYear, ok := referenceYear(refDate); ok && year == refYear {
			return 0.6
		}
		return 0.2
	}

	return 0.3
}

// dateForms expands a reference date string into the verbatim forms
// to look for: as given, YYYY-MM-DD and YYYY年MM月DD日.
func dateForms(refDate string) []string {
	forms := []string{refDate}

	y, m, d, ok := splitDate(refDate)
	if !ok {
		return forms
	}
	forms = append(forms,
		fmt.Sprintf("%04d-%02d-%02d", y, m, d),
		fmt.Sprintf("%d年%02d月%02d日", y, m, d),
		fmt.Sprintf("%d年%d月%d日", y, m, d),
	)
	return forms
}

var (
	isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	cjkDateRe = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日$`)
)

func splitDate(refDate string) (year, month, day int, ok bool) {
	m := isoDateRe.FindStringSubmatch(refDate)
	if m == nil {
		m = cjkDateRe.FindStringSubmatch(refDate)
	}
	if m == nil {
		return 0, 0, 0, false
	}
	year, _ = strconv.Atoi(m[1])
	month, _ = strconv.Atoi(m[2])
	day, _ = strconv.Atoi(m[3])
	return year, month, day, true
}

func referenceYear(refDate string) (int, bool) {
	if refDate == "" {
		return 0, false
	}
	if m := cjkYearRe.FindStringSubmatch(refDate); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y, true
	}
	if i := strings.IndexByte(refDate, '-'); i > 0 {
		if y, err := strconv.Atoi(refDate[:i]); err == nil {
			return y, true
		}
	}
	return 0, false
}

func firstYear(text string) (int, bool) {
	if m := cjkYearRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y, true
	}
	if m := bareYearRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y, true
	}
	return 0, false
}

// ParseResults parses the formatted search output into entries. When
// the structured pattern matches nothing it falls back to a coarse
// blank-line-delimited split.
func ParseResults(formatted string) []Entry {
	if formatted == "" {
		return nil
	}

	var entries []Entry
	for _, m := range entryRe.FindAllStringSubmatch(formatted, -1) {
		idx, _ := strconv.Atoi(m[1])
		entries = append(entries, Entry{
			Index:   idx,
			Title:   strings.TrimSpace(m[2]),
			Snippet: strings.TrimSpace(m[3]),
			URL:     strings.TrimSpace(m[4]),
			Source:  strings.TrimSpace(m[5]),
		})
	}
	if len(entries) > 0 {
		return entries
	}

	for i, block := range splitBlocks(formatted) {
		lines := strings.Split(block, "\n")
		e := Entry{
			Index: i + 1,
			Title: strings.TrimSpace(lines[0]),
		}
		for _, ln := range lines[1:] {
			switch {
			case strings.HasPrefix(ln, "📝"):
				e.Snippet = strings.TrimSpace(strings.TrimPrefix(ln, "📝"))
			case strings.HasPrefix(ln, "🔗"):
				e.URL = strings.TrimSpace(strings.TrimPrefix(ln, "🔗"))
			case strings.Contains(ln, "Source") || strings.Contains(ln, "来源"):
				if j := strings.LastIndexAny(ln, ":："); j >= 0 {
					e.Source = strings.TrimSpace(ln[j+1:])
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func splitBlocks(formatted string) []string {
	var blocks []string
	for _, b := range strings.Split(formatted, "\n\n") {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// Review scores every parsed entry against the user question and the
// reference date and selects the recommended subset: every entry with
// final score >= 0.4, or the top 2 when none qualifies.
func Review(formatted, userQuestion, refDate string) Outcome {
	parsed := ParseResults(formatted)

	entries := make([]Entry, 0, len(parsed))
	for _, e := range parsed {
		rel := RelevanceScore(userQuestion, e.Title, e.Snippet)
		rec := RecencyScore(refDate, e.Title, e.Snippet)

		e.RelevanceScore = round3(rel)
		e.RecencyScore = round3(rec)
		e.FinalScore = round3(rel*0.7 + rec*0.3)
		e.Reasons = reasons(rel, rec)
		entries = append(entries, e)
	}

	var recommended []int
	for _, e := range entries {
		if e.FinalScore >= scoreThreshold {
			recommended = append(recommended, e.Index)
		}
	}
	if len(recommended) == 0 && len(entries) > 0 {
		byScore := make([]Entry, len(entries))
		copy(byScore, entries)
		sort.SliceStable(byScore, func(i, j int) bool {
			return byScore[i].FinalScore > byScore[j].FinalScore
		})
		for i := 0; i < len(byScore) && i < 2; i++ {
			recommended = append(recommended, byScore[i].Index)
		}
	}

	return Outcome{
		Summary:         fmt.Sprintf("Parsed %d results, %d recommended.", len(entries), len(recommended)),
		Recommendations: recommended,
		Entries:         entries,
	}
}

func reasons(rel, rec float64) []string {
	out := make([]string, 0, 2)
	if rel > 0.4 {
		out = append(out, fmt.Sprintf("keyword match (%.2f)", rel))
	} else {
		out = append(out, fmt.Sprintf("weak keyword match (%.2f)", rel))
	}
	switch {
	case rec >= 0.8:
		out = append(out, "time signal consistent with the query date")
	case rec >= 0.5:
		out = append(out, "time possibly relevant")
	default:
		out = append(out, "time unclear or stale")
	}
	return out
}

// RenderFiltered rebuilds a numbered block from at most 10 entries:
// the recommended ones first, padded by the highest-scoring remaining
// entries. Returns "" when the outcome holds no entries.
func RenderFiltered(o Outcome) string {
	if len(o.Entries) == 0 {
		return ""
	}

	byIndex := make(map[int]Entry, len(o.Entries))
	for _, e := range o.Entries {
		byIndex[e.Index] = e
	}

	var kept []Entry
	seen := make(map[int]bool)
	for _, idx := range o.Recommendations {
		if len(kept) >= maxRendered {
			break
		}
		if e, ok := byIndex[idx]; ok && !seen[idx] {
			kept = append(kept, e)
			seen[idx] = true
		}
	}

	if len(kept) < maxRendered {
		rest := make([]Entry, 0, len(o.Entries))
		for _, e := range o.Entries {
			if !seen[e.Index] {
				rest = append(rest, e)
			}
		}
		sort.SliceStable(rest, func(i, j int) bool {
			return rest[i].FinalScore > rest[j].FinalScore
		})
		for _, e := range rest {
			if len(kept) >= maxRendered {
				break
			}
			kept = append(kept, e)
			seen[e.Index] = true
		}
	}

	var sb strings.Builder
	sb.WriteString("🔍 Search results screened for relevance:\n\n")
	for i, e := range kept {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, orDefault(e.Title, "Untitled"))
		fmt.Fprintf(&sb, "📝 %s\n", orDefault(e.Snippet, "No description"))
		if e.URL != "" {
			fmt.Fprintf(&sb, "🔗 %s\n", e.URL)
		}
		fmt.Fprintf(&sb, "📍 Source: %s\n", orDefault(e.Source, "Unknown"))
		if len(e.Reasons) > 0 {
			fmt.Fprintf(&sb, "💡 Reasons: %s\n", strings.Join(e.Reasons, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
