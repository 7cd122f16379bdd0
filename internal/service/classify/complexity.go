package classify

import "strings"

// Complexity decides how much conversation history a question needs.
type Complexity string

const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

var complexIndicators = []string{
	// ru
	"архитектур", "систем", "дизайн", "проектирован", "масштабир",
	"оптимизац", "производительност", "сравни", "отличи", "преимуществ",
	"недостатк", "когда использ", "почему", "объясни подробн",
	// en
	"architecture", "system", "design", "scaling", "scalab",
	"optimiz", "performance", "compare", "differ", "advantage",
	"disadvantage", "trade-off", "tradeoff", "when to use", "why", "in detail",
}

var simpleIndicators = []string{
	// ru
	"что такое", "определени", "назови", "перечисли", "какой",
	"да или нет", "верно ли", "правда ли",
	// en
	"what is", "definition", "name ", "list ", "which",
	"yes or no", "is it true",
}

// windows maps complexity to the number of recent turns kept.
var windows = map[Complexity]int{
	Simple:  3,
	Medium:  5,
	Complex: 8,
}

// ComplexityOf classifies a question. Complex indicators win over simple
// ones; a long history with no indicators is Medium.
func ComplexityOf(question string, history []string) Complexity {
	q := strings.ToLower(question)
	for _, ind := range complexIndicators {
		if strings.Contains(q, ind) {
			return Complex
		}
	}
	for _, ind := range simpleIndicators {
		if strings.Contains(q, ind) {
			return Simple
		}
	}
	if len(history) > 5 {
		return Medium
	}
	return Simple
}

// Window returns the number of recent turns for a complexity.
func (c Complexity) Window() int {
	if n, ok := windows[c]; ok {
		return n
	}
	return windows[Medium]
}
