// File: internal/automation/prompt.go
package automation

import "fmt"

// analysisPromptTemplate asks the model to inspect a course page screenshot
// and decide the next action. The reply contract (a single JSON object) is
// spelled out explicitly; the decoder still tolerates fences and prose.
const analysisPromptTemplate = `You are looking at a screenshot of an online e-learning course page.
You are currently %s.

Analyze the page and decide the single next action that moves the course forward.

Respond with ONLY a JSON object in this exact format:
{
    "action": "click" | "scroll" | "wait" | "read" | "answer_question" | "complete",
    "element": "description of the element to click (for click actions)",
    "reasoning": "one sentence explaining your choice",
    "answer_index": 0,
    "is_test": false
}

Rules:
- If you see a Launch, Resume, Start, Next Page, Next Lesson, Submit or Continue button, choose "click" and name it in "element".
- If the page shows a multiple-choice question, choose "answer_question" and put the zero-based index of the correct option in "answer_index". Set "is_test" to true if this looks like a graded test.
- If content appears to still be loading, choose "wait".
- If there is readable content but no visible navigation control, choose "scroll".
- If the page says the course is finished (certificate, completion message), choose "complete".
- Never choose "complete" unless completion is explicitly shown on screen.`

// courseListPrompt asks the model whether the screenshot shows a course
// selection page, and to enumerate the visible courses if so.
const courseListPrompt = `You are looking at a screenshot of an e-learning site.
Determine whether this is a course selection page listing one or more enrolled courses.

Respond with ONLY a JSON object in this exact format:
{
    "has_courses": true,
    "courses": [
        {"title": "full course title", "code": "course code if shown, else empty", "element_text": "the exact visible link or button text for this course"}
    ]
}

If this is not a course list page, respond with {"has_courses": false, "courses": []}.`

// buildAnalysisPrompt renders the per-iteration analysis prompt.
func buildAnalysisPrompt(st *State) string {
	location := "on the course selection page, before entering a course"
	if st.InCourse {
		location = "inside the course player"
	}
	return fmt.Sprintf(analysisPromptTemplate, location)
}
