// File: internal/browser/locator.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TargetKind is the typed enumeration of navigation controls the locator
// knows how to find. The model describes targets in free text; KindOf maps
// that text onto exactly one kind, and the selector table below maps each
// kind onto its ordered structural selector list.
type TargetKind int

const (
	KindUnknown TargetKind = iota
	KindLaunch
	KindResume
	KindStart
	KindNextPage
	KindNextLesson
	KindSubmit
	KindContinue
)

// kindPriority fixes the order in which description keywords are tried.
// The first matching keyword wins.
var kindPriority = []TargetKind{
	KindLaunch,
	KindResume,
	KindStart,
	KindNextPage,
	KindNextLesson,
	KindSubmit,
	KindContinue,
}

func (k TargetKind) String() string {
	switch k {
	case KindLaunch:
		return "launch"
	case KindResume:
		return "resume"
	case KindStart:
		return "start"
	case KindNextPage:
		return "next_page"
	case KindNextLesson:
		return "next_lesson"
	case KindSubmit:
		return "submit"
	case KindContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// matchToken is the substring that identifies this kind inside a free-text
// target description.
func (k TargetKind) matchToken() string {
	switch k {
	case KindNextPage:
		return "next page"
	case KindNextLesson:
		return "next lesson"
	default:
		return k.String()
	}
}

// Keyword is the lowercase token used by the free-text fallback scan.
// "Next Page" deliberately degrades to "next" so plain "Next" buttons match.
func (k TargetKind) Keyword() string {
	if k == KindNextPage {
		return "next"
	}
	return k.matchToken()
}

// KindOf extracts the target kind from a free-text description.
func KindOf(description string) TargetKind {
	d := strings.ToLower(description)
	for _, k := range kindPriority {
		if strings.Contains(d, k.matchToken()) {
			return k
		}
	}
	return KindUnknown
}

// selectorSpec is one structural selector attempt: a CSS selector plus an
// optional lowercase substring the element's visible text must contain.
type selectorSpec struct {
	CSS  string `json:"css"`
	Text string `json:"text,omitempty"`
}

// selectorTable maps each target kind to its ordered structural selectors.
// Entries follow the conventions observed on the course site: text-bearing
// buttons and links first, then value/onclick attributes, then class and id
// conventions.
var selectorTable = map[TargetKind][]selectorSpec{
	KindLaunch: {
		{CSS: "button", Text: "launch"},
		{CSS: "a", Text: "launch"},
		{CSS: `input[value*='Launch' i]`},
		{CSS: `[onclick*='launch']`},
		{CSS: ".launch-button"},
		{CSS: "#launch"},
	},
	KindResume: {
		{CSS: "button", Text: "resume"},
		{CSS: "a", Text: "resume"},
		{CSS: `input[value*='Resume' i]`},
		{CSS: `[onclick*='resume']`},
		{CSS: ".resume-button"},
	},
	KindStart: {
		{CSS: "button", Text: "start"},
		{CSS: "a", Text: "start"},
		{CSS: `input[value*='Start' i]`},
		{CSS: `[onclick*='start']`},
	},
	KindNextPage: {
		{CSS: "button", Text: "next page"},
		{CSS: "a", Text: "next page"},
		{CSS: `input[value*='Next Page' i]`},
		{CSS: ".next-page"},
		{CSS: "#nextPage"},
	},
	KindNextLesson: {
		{CSS: "button", Text: "next lesson"},
		{CSS: "a", Text: "next lesson"},
		{CSS: `input[value*='Next Lesson' i]`},
		{CSS: ".next-lesson"},
		{CSS: "#nextLesson"},
	},
	KindSubmit: {
		{CSS: "button", Text: "submit"},
		{CSS: `input[type='submit']`},
		{CSS: `button[type='submit']`},
		{CSS: "a", Text: "submit"},
	},
	KindContinue: {
		{CSS: "button", Text: "continue"},
		{CSS: "a", Text: "continue"},
		{CSS: `input[value*='Continue' i]`},
	},
}

// activationParams is the JSON blob handed to the activation script.
type activationParams struct {
	Specs         []selectorSpec `json:"specs"`
	Keyword       string         `json:"keyword"`
	FrameSelector string         `json:"frameSelector"`
	IncludeFrame  bool           `json:"includeFrame"`
}

// activationResult is what the activation script reports back.
type activationResult struct {
	Clicked bool   `json:"clicked"`
	Phase   string `json:"phase"`
	Detail  string `json:"detail"`
}

// jsDocsAndVisibility is the shared script prelude: builds the ordered list
// of searchable documents (top page first, content iframe second when
// reachable) and defines the visibility check. Cross-origin frame access
// throws; the catch degrades the search to the top document only.
const jsDocsAndVisibility = `
	const isVisible = (el) => {
		const win = el.ownerDocument.defaultView;
		if (!win) return false;
		const style = win.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const docs = [document];
	if (params.includeFrame) {
		const frame = document.querySelector(params.frameSelector);
		if (frame) {
			try {
				if (frame.contentDocument) docs.push(frame.contentDocument);
			} catch (e) { /* cross-origin frame, top document only */ }
		}
	}
`

// activationScript finds and clicks one element. Phase 1 walks the
// structural selector specs against each document in order; phase 2 falls
// back to a free-text scan over every interactive element, matching the
// keyword against the element's text, value, aria-label and title. The first
// visible match is clicked and the script returns immediately.
const activationScript = `(() => {
	const params = JSON_PARAMS;
` + jsDocsAndVisibility + `
	for (const doc of docs) {
		for (const spec of params.specs) {
			let candidates;
			try { candidates = doc.querySelectorAll(spec.css); } catch (e) { continue; }
			for (const el of candidates) {
				if (!isVisible(el)) continue;
				if (spec.text) {
					const t = ((el.textContent || '') + ' ' + (el.value || '')).toLowerCase();
					if (!t.includes(spec.text)) continue;
				}
				el.click();
				return { clicked: true, phase: 'selector', detail: spec.css };
			}
		}
	}

	if (params.keyword) {
		const interactive = "button, a, input[type='button'], input[type='submit'], [role='button']";
		for (const doc of docs) {
			let candidates;
			try { candidates = doc.querySelectorAll(interactive); } catch (e) { continue; }
			for (const el of candidates) {
				if (!isVisible(el)) continue;
				const combined = [
					el.textContent || '',
					el.value || '',
					el.getAttribute('aria-label') || '',
					el.getAttribute('title') || ''
				].join(' ').toLowerCase();
				if (combined.includes(params.keyword)) {
					el.click();
					return { clicked: true, phase: 'text', detail: (el.textContent || el.value || '').trim().slice(0, 64) };
				}
			}
		}
	}

	return { clicked: false, phase: '', detail: '' };
})()`

// FindAndActivate searches the current search contexts for an element
// matching the described target and clicks it. A miss is a recoverable
// condition reported as false, never an error; browser failures are logged
// and also reported as false.
func (s *Session) FindAndActivate(ctx context.Context, description string) bool {
	kind := KindOf(description)
	log := s.logger.With(zap.String("target", description), zap.Stringer("kind", kind))

	if kind == KindUnknown {
		log.Debug("No recognized keyword in target description; skipping search.")
		return false
	}

	params := activationParams{
		Specs:         selectorTable[kind],
		Keyword:       kind.Keyword(),
		FrameSelector: contentFrameSelector,
		IncludeFrame:  s.nestedFrames,
	}
	script, err := injectParams(activationScript, params)
	if err != nil {
		log.Debug("Failed to encode locator parameters.", zap.Error(err))
		return false
	}

	var res activationResult
	if err := s.evaluate(ctx, script, &res); err != nil {
		log.Debug("Locator script failed.", zap.Error(err))
		return false
	}

	if res.Clicked {
		log.Info("Clicked element.", zap.String("phase", res.Phase), zap.String("detail", res.Detail))
	} else {
		log.Info("Could not find element.")
	}
	return res.Clicked
}

// injectParams embeds a JSON-encoded parameter blob into a script template.
func injectParams(template string, params interface{}) (string, error) {
	blob, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal script parameters: %w", err)
	}
	return strings.Replace(template, "JSON_PARAMS", string(blob), 1), nil
}
