package domain

import "strings"

// Category is the topic label assigned to a customer query.
type Category string

const (
	CategoryTechnical Category = "Technical"
	CategoryGeneral   Category = "General"
	CategoryBilling   Category = "Billing"
)

// Sentiment is the tone label assigned to a customer query.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// Categories lists every recognized category in prompt order.
var Categories = []Category{CategoryTechnical, CategoryGeneral, CategoryBilling}

// Sentiments lists every recognized sentiment in prompt order.
var Sentiments = []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral}

// ParseCategory normalizes raw completion text into a Category. The boolean
// reports whether the text was recognized; unrecognized text maps to General.
func ParseCategory(raw string) (Category, bool) {
	label := normalizeLabel(raw)
	for _, c := range Categories {
		if strings.EqualFold(label, string(c)) {
			return c, true
		}
	}
	return CategoryGeneral, false
}

// ParseSentiment normalizes raw completion text into a Sentiment. The boolean
// reports whether the text was recognized; unrecognized text maps to Neutral.
func ParseSentiment(raw string) (Sentiment, bool) {
	label := normalizeLabel(raw)
	for _, s := range Sentiments {
		if strings.EqualFold(label, string(s)) {
			return s, true
		}
	}
	return SentimentNeutral, false
}

// normalizeLabel strips whitespace, quotes and trailing punctuation that
// models commonly wrap around a single-word answer.
func normalizeLabel(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), "\"'`.!*: \t\r\n")
}
