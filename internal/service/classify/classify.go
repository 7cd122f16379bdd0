// Package classify routes questions into answer categories with keyword scoring.
package classify

import "strings"

// Category is the answer category of a question.
type Category string

const (
	Technical  Category = "technical"
	Experience Category = "experience"
	General    Category = "general"
)

// Valid returns true for the three known categories.
func (c Category) Valid() bool {
	return c == Technical || c == Experience || c == General
}

var experienceKeywords = []string{
	// ru
	"опыт", "работал", "проект", "делал", "команда", "задача",
	"ситуация", "пример", "как вы", "расскажите о себе",
	"почему вы", "ваш опыт", "последний проект", "достижения",
	"опишите", "решили", "сложную", "справились", "столкнулись",
	// en
	"experience", "worked", "project", "your team", "tell me about yourself",
	"describe a time", "situation", "example of", "why do you", "achievement",
	"challenge", "how did you", "handled", "faced",
}

var technicalKeywords = []string{
	// ru
	"что такое", "как работает", "объясни", "разница между",
	"чем отличается", "принцип", "алгоритм", "структура данных",
	"паттерн", "зачем нужен", "когда использовать", "определение",
	// en
	"what is", "how does", "explain", "difference between",
	"how is it different", "principle", "algorithm", "data structure",
	"pattern", "why do we need", "when to use", "definition",
}

// Classify scores the question against both keyword tables.
// A strictly higher score wins; ties and zero scores are General.
func Classify(question string) Category {
	q := strings.ToLower(question)
	exp := score(q, experienceKeywords)
	tech := score(q, technicalKeywords)

	switch {
	case exp > tech && exp > 0:
		return Experience
	case tech > exp && tech > 0:
		return Technical
	default:
		return General
	}
}

func score(q string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			n++
		}
	}
	return n
}

// Budget is the generation budget for a category.
type Budget struct {
	MaxTokens   int
	Temperature float64
}

var budgets = map[Category]Budget{
	Experience: {MaxTokens: 900, Temperature: 0.8},
	Technical:  {MaxTokens: 700, Temperature: 0.5},
	General:    {MaxTokens: 500, Temperature: 0.7},
}

// DefaultBudget applies to unknown categories.
var DefaultBudget = Budget{MaxTokens: 600, Temperature: 0.7}

// BudgetFor returns the generation budget for a category.
func BudgetFor(c Category) Budget {
	if b, ok := budgets[c]; ok {
		return b
	}
	return DefaultBudget
}
