package rag

import (
	"strings"

	"ai-live-hints-service/internal/service/classify"
)

// Profiles select the assistant persona and its few-shot examples.
const (
	ProfileInterview = "interview"
	ProfileSales     = "sales"
	ProfileSupport   = "support"
)

// Example is one few-shot question and answer.
type Example struct {
	User      string
	Assistant string
}

type profilePrompt struct {
	persona  string
	examples []Example
}

var profiles = map[string]profilePrompt{
	ProfileInterview: {
		persona: "You assist a candidate during a live interview. Answer briefly (1-2 sentences, at most 3). " +
			"Use markdown bold for the key point. Focus on the interviewer's latest question.",
		examples: []Example{
			{
				User:      "Tell me about yourself",
				Assistant: "Backend developer with **3+ years** of experience. Main stack: **Go, PostgreSQL, Kafka**. Latest project: an event-driven platform for fintech.",
			},
			{
				User:      "What is a goroutine?",
				Assistant: "A goroutine is a function running concurrently, scheduled by the Go runtime on a small pool of OS threads. Start one with `go f()`.",
			},
			{
				User:      "How does a buffered channel differ from an unbuffered one?",
				Assistant: "An unbuffered channel blocks the sender until a receiver is ready. A buffered one:\n- accepts up to `cap` values without a receiver\n- blocks only when full",
			},
		},
	},
	ProfileSales: {
		persona: "You assist a salesperson during a live call. Answer briefly. " +
			"Help handle objections and suggest arguments.",
		examples: []Example{
			{
				User:      "This is too expensive",
				Assistant: "Understood. Let's look at **ROI**: how soon does it pay back? Clients typically save **30-40%** on current processes.",
			},
			{
				User:      "We need to think about it",
				Assistant: "Of course! Which questions would you like to go over? I can prepare a **competitor comparison** or **case studies** from your industry.",
			},
		},
	},
	ProfileSupport: {
		persona: "You assist a support engineer during a live call. Answer briefly and to the point. " +
			"Offer step-by-step fixes. If unsure, say so.",
		examples: []Example{
			{
				User:      "Login does not work",
				Assistant: "Check: 1) Caps Lock is off 2) try a **password reset** 3) clear the browser cache. If that fails, share the login and I'll check the account status.",
			},
		},
	},
}

// NormalizeProfile maps unknown profiles to the interview profile.
func NormalizeProfile(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if _, ok := profiles[p]; ok {
		return p
	}
	return ProfileInterview
}

// FewShot returns the examples of a profile.
func FewShot(profile string) []Example {
	return profiles[NormalizeProfile(profile)].examples
}

// Persona returns the role description of a profile.
func Persona(profile string) string {
	return profiles[NormalizeProfile(profile)].persona
}

// Profile text included in the system prompt, per category.
const (
	experienceProfileChars = 500
	generalProfileChars    = 300
)

// BuildSystemPrompt returns the category instructions together with as much
// of the speaker's profile text as the category needs. Technical questions
// get no profile text.
func BuildSystemPrompt(category classify.Category, userContext string) string {
	switch category {
	case classify.Experience:
		return "Answer in 1-3 bullet points, markdown. " +
			"Speaker profile:\n" + truncate(userContext, experienceProfileChars) + "\n\n" +
			"Name the project, the technologies and the result."
	case classify.Technical:
		return "Technical question. Give a short definition (1-2 sentences) " +
			"plus a code example if useful. Markdown, no filler."
	default:
		return "Answer in 1-2 sentences, markdown. " +
			"Context:\n" + truncate(userContext, generalProfileChars)
	}
}

const focusInstructions = "IMPORTANT:\n" +
	"1. Answer ONLY the last question in the dialogue.\n" +
	"2. Earlier questions are context only; do not answer them.\n" +
	"3. Answer in the language of the question."

func currentQuestion(q string) string {
	return "CURRENT QUESTION (answer only this one):\n" + q
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
