// Package advisor inspects query text for patterns that usually cost
// performance and suggests rewrites. The analysis is purely textual over
// a token stream; nothing is executed and no connection is involved, so
// a full query grammar can replace the token rules later without
// changing the suggestion shape.
package advisor

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Severity grades a suggestion.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Rule identifiers, in evaluation priority order.
const (
	RuleUnrestrictedProjection = "unrestricted-projection"
	RuleMissingEarlyFilter     = "missing-early-filter"
	RuleMissingTimeFilter      = "missing-time-filter"
	RuleLateFilter             = "late-filter"
	RuleSortWithoutLimit       = "sort-without-limit"
	RuleRepeatedScan           = "repeated-scan"
	RuleDeepPipeline           = "deep-pipeline"
	RuleJoinWithoutKind        = "join-without-kind"
)

// Suggestion is one piece of advice about the query text.
type Suggestion struct {
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Advisor evaluates a fixed rule set against query text. Rules are
// independent; several may fire for one query. The output order is the
// rule priority order, not the order patterns appear in the text.
type Advisor struct {
	logger *zap.Logger
}

// NewAdvisor creates an advisor.
func NewAdvisor(logger *zap.Logger) *Advisor {
	return &Advisor{logger: logger.Named("advisor")}
}

var rules = []func([]stage) *Suggestion{
	ruleProjection,
	ruleEarlyFilter,
	ruleTimeFilter,
	ruleLateFilter,
	ruleSortWithoutLimit,
	ruleRepeatedScan,
	ruleDeepPipeline,
	ruleJoinKind,
}

// Suggest returns the advice for the query. A query no rule matches
// yields an empty list; that is not an error.
func (a *Advisor) Suggest(query string) []Suggestion {
	tokens, err := scan(query)
	if err != nil {
		a.logger.Debug("query scan failed", zap.String("error", err.Error()))
		return nil
	}
	stages := splitStages(tokens)
	if len(stages) == 0 {
		return nil
	}

	var suggestions []Suggestion
	for _, rule := range rules {
		if s := rule(stages); s != nil {
			suggestions = append(suggestions, *s)
		}
	}
	return suggestions
}

// narrowing operators bound the column set a query returns.
func ruleProjection(stages []stage) *Suggestion {
	explicitStar := false
	narrowed := false
	for _, s := range stages {
		op := s.operator()
		switch op {
		case "project", "project-away", "project-keep", "summarize", "count", "distinct":
			if op == "project" && s.hasText("*") {
				explicitStar = true
				continue
			}
			narrowed = true
		}
	}
	if !explicitStar && (narrowed || len(stages) <= 2) {
		return nil
	}
	return &Suggestion{
		Rule:     RuleUnrestrictedProjection,
		Message:  "Query returns every column. Narrow it with 'project' to just the columns later stages need.",
		Severity: SeverityInfo,
	}
}

func ruleEarlyFilter(stages []stage) *Suggestion {
	if len(stages) <= 2 {
		return nil
	}
	for _, s := range stages[:3] {
		switch s.operator() {
		case "where", "take", "limit", "top", "sample":
			return nil
		}
	}
	return &Suggestion{
		Rule:     RuleMissingEarlyFilter,
		Message:  "No filter or row limit in the first pipeline stages. Start with 'where' or 'take' so later stages work on less data.",
		Severity: SeverityInfo,
	}
}

// timeColumns are identifiers that typically name the ingestion or event
// time of a table.
var timeColumns = map[string]bool{
	"timestamp":     true,
	"time":          true,
	"date":          true,
	"starttime":     true,
	"endtime":       true,
	"eventtime":     true,
	"timegenerated": true,
	"ingestiontime": true,
}

func ruleTimeFilter(stages []stage) *Suggestion {
	mentionsTime := false
	bounded := false
	for _, s := range stages {
		for _, tok := range s.tokens {
			if tok.typ != symIdent {
				continue
			}
			switch text := strings.ToLower(tok.text); {
			case timeColumns[text]:
				mentionsTime = true
			case text == "ago" || text == "between" || text == "datetime":
				bounded = true
			}
		}
	}
	if !mentionsTime || bounded {
		return nil
	}
	return &Suggestion{
		Rule:     RuleMissingTimeFilter,
		Message:  "Query touches a time column but never bounds it. Add 'where <column> > ago(...)' or a 'between' window to avoid scanning full retention.",
		Severity: SeverityWarning,
	}
}

func ruleLateFilter(stages []stage) *Suggestion {
	barrier := -1
	for i, s := range stages {
		switch s.operator() {
		case "join", "summarize", "union", "lookup":
			if barrier < 0 {
				barrier = i
			}
		case "where":
			if barrier >= 0 && i > barrier {
				return &Suggestion{
					Rule:     RuleLateFilter,
					Message:  "A 'where' stage runs after a join or aggregation. Push filters in front of them so less data flows through the expensive stage.",
					Severity: SeverityInfo,
				}
			}
		}
	}
	return nil
}

func ruleSortWithoutLimit(stages []stage) *Suggestion {
	hasSort := false
	hasLimit := false
	for _, s := range stages {
		switch s.operator() {
		case "sort", "order":
			hasSort = true
		case "take", "limit", "top":
			hasLimit = true
		}
	}
	if !hasSort || hasLimit {
		return nil
	}
	return &Suggestion{
		Rule:     RuleSortWithoutLimit,
		Message:  "Sorting without a row limit orders the entire result. Add 'take' after the sort, or use 'top' to combine both.",
		Severity: SeverityInfo,
	}
}

// operatorSources are leading idents that are operators rather than
// table references.
var operatorSources = map[string]bool{
	"print": true, "search": true, "find": true, "datatable": true,
	"range": true, "let": true, "materialize": true, "evaluate": true,
	"externaldata": true, "union": true,
}

func ruleRepeatedScan(stages []stage) *Suggestion {
	counts := make(map[string]int)
	if src := stages[0].operator(); src != "" && !operatorSources[src] {
		counts[src]++
	}
	for _, s := range stages {
		op := s.operator()
		if op != "join" && op != "union" && op != "lookup" {
			continue
		}
		for _, ref := range s.parenSources() {
			counts[ref]++
		}
		if op == "union" {
			for _, ref := range s.unionSources() {
				counts[ref]++
			}
		}
	}

	var repeated string
	n := 0
	for ref, c := range counts {
		if c > n || (c == n && ref < repeated) {
			repeated, n = ref, c
		}
	}
	if n < 2 {
		return nil
	}

	wheres := 0
	for _, s := range stages {
		for _, tok := range s.tokens {
			if tok.typ == symIdent && strings.EqualFold(tok.text, "where") {
				wheres++
			}
		}
	}
	if wheres >= n {
		return nil
	}
	return &Suggestion{
		Rule:     RuleRepeatedScan,
		Message:  fmt.Sprintf("Table %q is referenced %d times and scanned on each reference. Compute the filtered subset once with 'let' and reuse it.", repeated, n),
		Severity: SeverityWarning,
	}
}

const maxPipelineStages = 10

func ruleDeepPipeline(stages []stage) *Suggestion {
	if len(stages) <= maxPipelineStages {
		return nil
	}
	return &Suggestion{
		Rule:     RuleDeepPipeline,
		Message:  fmt.Sprintf("Pipeline chains %d operators. Split shared prefixes into 'let' bindings or materialize intermediate results.", len(stages)),
		Severity: SeverityWarning,
	}
}

func ruleJoinKind(stages []stage) *Suggestion {
	for _, s := range stages {
		if s.operator() == "join" && !s.hasIdent("kind") {
			return &Suggestion{
				Rule:     RuleJoinWithoutKind,
				Message:  "'join' without an explicit kind defaults to innerunique, which deduplicates the left side. State the kind to make intent explicit.",
				Severity: SeverityInfo,
			}
		}
	}
	return nil
}
