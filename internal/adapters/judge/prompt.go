package judge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/pitchjudge/internal/domain/model"
)

const promptHeader = `You are an expert hackathon judge evaluating a complete presentation submission.
You will receive all slides of a presentation as images to analyze the entire narrative flow and coherence.

IMPORTANT: Analyze the presentation as a complete story, considering:
- How well slides connect and flow together
- Overall narrative coherence and structure
- Consistency in messaging across slides
- Complete project comprehension
`

const promptQuality = `
Additional Analysis:
- Presentation Flow Score (1-10): How well slides connect narratively
- Completeness Score (1-10): Whether all essential aspects are covered
- Consistency Score (1-10): Message consistency across slides

Please provide a comprehensive evaluation considering the domain-specific requirements and provide constructive feedback for improvement.

Respond in this exact JSON format:
`

const promptExampleTail = `  },
  "detailed_feedback": {
    "strengths": ["Excellent problem identification", "Clear technical architecture"],
    "weaknesses": ["Demo section unclear", "Missing implementation timeline"],
    "suggestions": ["Add more technical details", "Strengthen demo section"]
  },
  "slide_by_slide_notes": [
    {"slide": 1, "note": "Strong opening with clear problem statement"},
    {"slide": 2, "note": "Good market analysis but needs more data"}
  ],
  "executive_summary": "A solid understanding of the problem space with an innovative solution."
}
`

// Prompt builds the evaluation instructions for a domain. Criteria are listed
// in name order so the same domain always yields the same prompt.
func Prompt(d *model.Domain) string {
	names := make([]string, 0, len(d.Criteria))
	for name := range d.Criteria {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(promptHeader)
	fmt.Fprintf(&b, "\nDomain-Specific Context: %s\nDomain Description: %s\n", d.Name, d.Description)
	b.WriteString("\nEvaluation Criteria (score 1-10 for each):\n")
	for i, name := range names {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, criterionTitle(name), d.Criteria[name])
	}
	b.WriteString(promptQuality)
	b.WriteString(`{
  "overall_analysis": {
    "presentation_flow_score": 8,
    "completeness_score": 7,
    "consistency_score": 9,
    "total_slides_analyzed": 12
  },
  "criteria_scores": {
`)
	for i, name := range names {
		sep := ","
		if i == len(names)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %q: 8%s\n", name, sep)
	}
	b.WriteString(promptExampleTail)
	return b.String()
}

// criterionTitle turns "technical_innovation" into "Technical Innovation".
func criterionTitle(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// ExtractJSON pulls the JSON object out of a model answer: the body of a
// ```json fence when present, otherwise everything from the first '{' to the
// last '}'.
func ExtractJSON(text string) ([]byte, error) {
	const fence = "```json"
	if start := strings.Index(text, fence); start >= 0 {
		body := text[start+len(fence):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		if body = strings.TrimSpace(body); body != "" {
			return []byte(body), nil
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}
	return []byte(text[start : end+1]), nil
}
