package dsl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Clause struct {
	Field    string
	Operator string
	Values   []string
}

// Value returns the single operand of a non-IN clause.
func (c Clause) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

type Query struct {
	SelectFields []string
	Filters      []Clause
	Limit        int
}

// Keywords and field names are case-insensitive; quoted values keep their case.
var (
	selectRegex = regexp.MustCompile(`(?i)^select\s+(.+?)(?:\s+where\s+|\s+limit\s+|$)`)
	whereRegex  = regexp.MustCompile(`(?i)\s+where\s+(.+?)(?:\s+limit\s+\d+\s*)?$`)
	limitRegex  = regexp.MustCompile(`(?i)\s+limit\s+(\d+)\s*$`)
	andRegex    = regexp.MustCompile(`(?i)^\s+and\s+`)
	commaRegex  = regexp.MustCompile(`^\s*,\s*`)
	fieldRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	filterRegex = regexp.MustCompile(`(?i)^([a-zA-Z][a-zA-Z0-9_]*)\s*(>=|<=|!=|=|>|<|\s+in\s+)\s*(.+)$`)
)

func Parse(input string) (Query, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(strings.ToLower(input), "select") {
		return Query{}, fmt.Errorf("query must start with select")
	}

	var query Query

	selectMatch := selectRegex.FindStringSubmatch(input)
	if len(selectMatch) < 2 {
		return Query{}, fmt.Errorf("missing select fields")
	}
	for _, field := range strings.Split(selectMatch[1], ",") {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if !fieldRegex.MatchString(field) {
			return Query{}, fmt.Errorf("invalid select field %q", field)
		}
		query.SelectFields = append(query.SelectFields, field)
	}

	if whereMatch := whereRegex.FindStringSubmatch(input); len(whereMatch) >= 2 {
		for _, raw := range splitUnquoted(strings.TrimSpace(whereMatch[1]), andRegex) {
			clause, err := parseClause(strings.TrimSpace(raw))
			if err != nil {
				return Query{}, err
			}
			query.Filters = append(query.Filters, clause)
		}
	}

	if limitMatch := limitRegex.FindStringSubmatch(input); len(limitMatch) >= 2 {
		limit, err := strconv.Atoi(limitMatch[1])
		if err != nil {
			return Query{}, fmt.Errorf("invalid limit %q", limitMatch[1])
		}
		query.Limit = limit
	}

	if len(query.SelectFields) == 0 {
		return Query{}, fmt.Errorf("at least one field must be selected")
	}

	return query, nil
}

func parseClause(raw string) (Clause, error) {
	match := filterRegex.FindStringSubmatch(raw)
	if len(match) < 4 {
		return Clause{}, fmt.Errorf("invalid filter %q", raw)
	}
	clause := Clause{
		Field:    strings.ToLower(match[1]),
		Operator: strings.ToLower(strings.TrimSpace(match[2])),
	}
	operand := strings.TrimSpace(match[3])
	if clause.Operator != "in" {
		clause.Values = []string{unquote(operand)}
		return clause, nil
	}
	if !strings.HasPrefix(operand, "(") || !strings.HasSuffix(operand, ")") {
		return Clause{}, fmt.Errorf("in filter on %s needs a parenthesised list", clause.Field)
	}
	for _, v := range splitUnquoted(operand[1:len(operand)-1], commaRegex) {
		if v = strings.TrimSpace(v); v != "" {
			clause.Values = append(clause.Values, unquote(v))
		}
	}
	if len(clause.Values) == 0 {
		return Clause{}, fmt.Errorf("in filter on %s has no values", clause.Field)
	}
	return clause, nil
}

// splitUnquoted cuts s wherever sep matches outside a quoted operand. sep
// must be anchored with ^.
func splitUnquoted(s string, sep *regexp.Regexp) []string {
	var (
		parts []string
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		if quote != 0 {
			if s[i] == quote {
				quote = 0
			}
			continue
		}
		if s[i] == '\'' || s[i] == '"' {
			quote = s[i]
			continue
		}
		if loc := sep.FindStringIndex(s[i:]); loc != nil {
			parts = append(parts, s[start:i])
			start = i + loc[1]
			i = start - 1
		}
	}
	return append(parts, s[start:])
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
