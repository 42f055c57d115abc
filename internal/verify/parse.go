package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/virasat/internal/model"
)

// ParseError reports a model reply that is not a usable verdict
type ParseError struct {
	Text string // reply excerpt
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse verdict: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errNoJSON       = errors.New("reply contains no JSON object")
	errMissingValid = errors.New("missing required field \"valid\"")
	errIncomplete   = errors.New("accepted verdict is missing name, era or narrative")
)

// wireVerdict mirrors the JSON contract requested by HeritagePrompt
type wireVerdict struct {
	Valid           *bool  `json:"valid"`
	RejectionReason string `json:"rejection_reason"`
	Name            string `json:"name"`
	Era             string `json:"era"`
	Narrative       string `json:"narrative"`
}

// ParseVerdict converts a raw model reply into a verdict. Code fences are
// stripped; the group selected by "valid" wins and the other is dropped.
func ParseVerdict(text string) (model.VerificationVerdict, error) {
	cleaned := cleanReply(text)
	if cleaned == "" {
		return model.VerificationVerdict{}, &ParseError{Text: excerpt(text), Err: errNoJSON}
	}

	var w wireVerdict
	if err := json.Unmarshal([]byte(cleaned), &w); err != nil {
		return model.VerificationVerdict{}, &ParseError{Text: excerpt(text), Err: err}
	}
	if w.Valid == nil {
		return model.VerificationVerdict{}, &ParseError{Text: excerpt(text), Err: errMissingValid}
	}

	if !*w.Valid {
		return model.Reject(w.RejectionReason), nil
	}

	v := model.Accept(w.Name, w.Era, w.Narrative)
	if v.Name == "" || v.Era == "" || v.Narrative == "" {
		return model.VerificationVerdict{}, &ParseError{Text: excerpt(text), Err: errIncomplete}
	}
	return v, nil
}

// cleanReply removes markdown fences and isolates the outermost JSON object
func cleanReply(text string) string {
	s := strings.ReplaceAll(text, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func excerpt(text string) string {
	const limit = 200
	text = strings.TrimSpace(text)
	if len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut] + "..."
	}
	return text
}
