// Package booleanquery evaluates AND/OR/NOT keyword expressions against
// free text. Queries are user input: a malformed expression must degrade to
// "no match" instead of failing an ingestion batch, and an empty query is a
// no-op filter that accepts everything.
package booleanquery

import (
	"regexp"
	"strings"
)

var invalidChars = regexp.MustCompile(`[^\w\s()]+`)

// Operator precedence: NOT binds tightest, OR loosest.
var precedence = map[string]int{
	"NOT": 1,
	"AND": 2,
	"OR":  3,
}

// Sanitize strips everything except word characters, whitespace and
// parentheses from a raw query string.
func Sanitize(raw string) string {
	return invalidChars.ReplaceAllString(raw, "")
}

// Evaluate reports whether text satisfies the boolean query. Bare words are
// case-insensitive substring terms. An empty or unparseable query evaluates
// to true so keyword-only projects are not blocked by the filter.
func Evaluate(query, text string) bool {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return true
	}

	postfix := toPostfix(tokens)
	if len(postfix) == 0 {
		return true
	}

	return evalPostfix(postfix, strings.ToLower(text))
}

func tokenize(query string) []string {
	query = strings.ReplaceAll(query, "(", " ( ")
	query = strings.ReplaceAll(query, ")", " ) ")

	var tokens []string
	for _, field := range strings.Fields(query) {
		if isOperator(field) {
			tokens = append(tokens, strings.ToUpper(field))
		} else {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

func isOperator(token string) bool {
	_, ok := precedence[strings.ToUpper(token)]
	return ok
}

// toPostfix is a shunting-yard conversion. Unmatched parentheses are
// silently absorbed rather than reported.
func toPostfix(tokens []string) []string {
	var output []string
	var stack []string

	for _, token := range tokens {
		switch {
		case token == "(":
			stack = append(stack, token)
		case token == ")":
			for len(stack) > 0 && stack[len(stack)-1] != "(" {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1] // discard "("
			}
		case isOperator(token):
			for len(stack) > 0 && isOperator(stack[len(stack)-1]) &&
				precedence[stack[len(stack)-1]] <= precedence[token] {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, token)
		default:
			output = append(output, token)
		}
	}

	for len(stack) > 0 {
		if top := stack[len(stack)-1]; top != "(" {
			output = append(output, top)
		}
		stack = stack[:len(stack)-1]
	}

	return output
}

// evalPostfix runs the stack evaluator. A pop from an empty stack yields
// false, so missing operands degrade to "no match".
func evalPostfix(postfix []string, haystack string) bool {
	var stack []bool

	pop := func() bool {
		if len(stack) == 0 {
			return false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, token := range postfix {
		switch token {
		case "NOT":
			stack = append(stack, !pop())
		case "AND":
			right, left := pop(), pop()
			stack = append(stack, left && right)
		case "OR":
			right, left := pop(), pop()
			stack = append(stack, left || right)
		default:
			stack = append(stack, strings.Contains(haystack, strings.ToLower(token)))
		}
	}

	return pop()
}
