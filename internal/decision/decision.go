// File: internal/decision/decision.go

// Package decision turns the vision model's raw text reply into a structured
// Decision. Decoding never fails: malformed input degrades to a safe wait
// decision so a single bad model reply cannot abort a long automation run.
package decision

import (
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Action enumerates the decision kinds the model may produce.
type Action string

const (
	ActionClick          Action = "click"
	ActionScroll         Action = "scroll"
	ActionWait           Action = "wait"
	ActionRead           Action = "read"
	ActionAnswerQuestion Action = "answer_question"
	ActionComplete       Action = "complete"
)

// knownActions is the closed set of recognized decision kinds.
var knownActions = map[Action]bool{
	ActionClick:          true,
	ActionScroll:         true,
	ActionWait:           true,
	ActionRead:           true,
	ActionAnswerQuestion: true,
	ActionComplete:       true,
}

// Decision is the structured record produced fresh each loop iteration. It is
// never persisted.
type Decision struct {
	Action      Action `json:"action"`
	Element     string `json:"element,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
	AnswerIndex int    `json:"answer_index,omitempty"`
	IsTest      bool   `json:"is_test,omitempty"`
}

// Course is one entry of a detected course list.
type Course struct {
	Title       string `json:"title"`
	Code        string `json:"code"`
	ElementText string `json:"element_text"`
}

// CourseList is the decoded reply of the course-detection prompt.
type CourseList struct {
	HasCourses bool     `json:"has_courses"`
	Courses    []Course `json:"courses"`
}

// Regex definitions use \x60 for backticks because Go raw strings cannot
// contain them.
var (
	// jsonObjectRegex extracts a JSON object wrapped in a markdown fence.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
)

// Decode parses a raw model reply into a Decision. Markdown code fences and
// conversational padding around the JSON object are stripped first. Any parse
// failure or unrecognized action yields a wait decision instead of an error.
func Decode(raw string) Decision {
	var dec Decision
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &dec); err != nil {
		return Decision{Action: ActionWait, Reasoning: "failed to parse model response"}
	}

	// Unrecognized or missing action kinds are treated as wait.
	dec.Action = Action(strings.ToLower(strings.TrimSpace(string(dec.Action))))
	if !knownActions[dec.Action] {
		if dec.Reasoning == "" {
			dec.Reasoning = "unrecognized action in model response"
		}
		dec.Action = ActionWait
	}
	return dec
}

// DecodeCourseList parses a course-detection reply. Failure yields an empty
// list, mirroring Decode's silent-degrade policy.
func DecodeCourseList(raw string) CourseList {
	var list CourseList
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &list); err != nil {
		return CourseList{}
	}
	return list
}

// extractJSONObject handles common model formatting issues: markdown code
// fences around the payload, and JSON embedded in conversational text.
func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if matches := jsonObjectRegex.FindStringSubmatch(raw); len(matches) > 1 {
			return matches[1]
		}
		// A fence without a complete object inside; strip the fence lines and
		// hope the remainder parses.
		var kept []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		return strings.TrimSpace(strings.Join(kept, "\n"))
	}

	if !strings.HasPrefix(raw, "{") {
		// Locate object boundaries within surrounding prose.
		first := strings.Index(raw, "{")
		last := strings.LastIndex(raw, "}")
		if first != -1 && last > first {
			return raw[first : last+1]
		}
	}
	return raw
}
