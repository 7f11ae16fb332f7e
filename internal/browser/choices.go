// File: internal/browser/choices.go
package browser

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// choiceParams is the JSON blob handed to the choice script.
type choiceParams struct {
	Index         int    `json:"index"`
	FrameSelector string `json:"frameSelector"`
	IncludeFrame  bool   `json:"includeFrame"`
}

type choiceResult struct {
	Clicked   bool   `json:"clicked"`
	Mechanism string `json:"mechanism"`
}

// choiceScript selects a multiple-choice answer by position. Radio inputs
// are tried first, then generically-classed answer/option/choice elements.
// Elements are collected across all search contexts, top document first.
const choiceScript = `(() => {
	const params = JSON_PARAMS;
` + jsDocsAndVisibility + `
	const collect = (sel) => {
		const out = [];
		for (const doc of docs) {
			try { doc.querySelectorAll(sel).forEach((el) => out.push(el)); } catch (e) {}
		}
		return out;
	};

	const radios = collect("input[type='radio']");
	if (radios.length > 0 && params.index < radios.length) {
		radios[params.index].click();
		return { clicked: true, mechanism: 'radio' };
	}

	const answers = collect(".answer, .option, .choice, [class*='answer'], [class*='option'], [class*='choice']");
	if (answers.length > 0 && params.index < answers.length) {
		answers[params.index].click();
		return { clicked: true, mechanism: 'element' };
	}

	return { clicked: false, mechanism: '' };
})()`

// SelectChoice clicks the multiple-choice option at the given zero-based
// index. It is a pure input mechanism: whether the index is the right answer
// is entirely the model's responsibility. Returns false when the index is out
// of range for both radio buttons and answer-classed elements.
func (s *Session) SelectChoice(ctx context.Context, index int) bool {
	log := s.logger.With(zap.Int("answer_index", index))
	if index < 0 {
		log.Debug("Negative answer index; nothing to select.")
		return false
	}

	params := choiceParams{
		Index:         index,
		FrameSelector: contentFrameSelector,
		IncludeFrame:  s.nestedFrames,
	}
	script, err := injectParams(choiceScript, params)
	if err != nil {
		log.Debug("Failed to encode choice parameters.", zap.Error(err))
		return false
	}

	var res choiceResult
	if err := s.evaluate(ctx, script, &res); err != nil {
		log.Debug("Choice script failed.", zap.Error(err))
		return false
	}

	if res.Clicked {
		log.Info("Selected answer option.", zap.String("mechanism", res.Mechanism))
	} else {
		log.Info("Could not find answer option at index.")
	}
	return res.Clicked
}

// ClickByText clicks the first visible element whose combined text contains
// the given needle. Used for selecting a detected course entry by its
// visible link text.
func (s *Session) ClickByText(ctx context.Context, text string) bool {
	if text == "" {
		return false
	}
	params := activationParams{
		Specs:         []selectorSpec{{CSS: "a, button, [onclick]", Text: strings.ToLower(strings.TrimSpace(text))}},
		FrameSelector: contentFrameSelector,
		IncludeFrame:  false,
	}
	script, err := injectParams(activationScript, params)
	if err != nil {
		s.logger.Debug("Failed to encode click-by-text parameters.", zap.Error(err))
		return false
	}

	var res activationResult
	if err := s.evaluate(ctx, script, &res); err != nil {
		s.logger.Debug("Click-by-text script failed.", zap.Error(err))
		return false
	}
	return res.Clicked
}
