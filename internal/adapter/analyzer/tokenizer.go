package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokensPerWord approximates how many model tokens an average report word costs.
const tokensPerWord = 1.3

// Function words dropped before hashing query and chunk terms.
var reportStopwords = strings.Fields(`
	a all also an and are as at be been being both but by can could did do does
	each for from had has have he her his how if in is it its may might more
	most must no not of on or other our shall she should so some such than that
	the their they this to too very was we were what when where which who whom
	why will with would you your
`)

// Tokenizer splits report text into lowercase terms and estimates model
// token counts.
type Tokenizer struct {
	stopwords map[string]struct{}
}

func NewTokenizer() *Tokenizer {
	stops := make(map[string]struct{}, len(reportStopwords))
	for _, w := range reportStopwords {
		stops[w] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// Tokenize returns the lowercase terms of text without stopwords and one-rune words.
func (t *Tokenizer) Tokenize(text string) []string {
	var terms []string
	for _, w := range splitWords(text) {
		w = strings.ToLower(w)
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, stop := t.stopwords[w]; stop {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// CountTokens returns an approximate token count for chunk budgeting.
func (t *Tokenizer) CountTokens(text string) int {
	return int(float64(len(splitWords(text))) * tokensPerWord)
}

// splitWords breaks text on anything that is not a letter, digit or underscore.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
