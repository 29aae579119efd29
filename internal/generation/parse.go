package generation

import (
	"encoding/json"
	"strings"

	"github.com/stemsi/docquiz-backend/internal/model"
	"github.com/xeipuuv/gojsonschema"
)

// ParseResult is the tagged outcome of reading a raw service response.
// When OK is false, Document holds the fallback {summary: raw, mcqs: []}
// and Reason says why the structured parse was rejected.
type ParseResult struct {
	Document model.QuizDocument
	OK       bool
	Reason   string
}

// Parse decodes a raw generative response into a QuizDocument. It never
// fails: malformed or schema-violating output degrades to a summary-only
// document with no questions.
func Parse(raw string) ParseResult {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" || !json.Valid([]byte(body)) {
		return fallback(raw, "response is not valid JSON")
	}

	res, err := documentSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return fallback(raw, "schema check failed: "+err.Error())
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fallback(raw, "response does not match schema: "+strings.Join(msgs, "; "))
	}

	var doc model.QuizDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fallback(raw, "decode response: "+err.Error())
	}
	if doc.Mcqs == nil {
		doc.Mcqs = []model.McqItem{}
	}
	return ParseResult{Document: doc, OK: true}
}

func fallback(raw, reason string) ParseResult {
	return ParseResult{
		Document: model.QuizDocument{Summary: raw, Mcqs: []model.McqItem{}},
		Reason:   reason,
	}
}

// stripCodeFence removes a surrounding ```json ... ``` block some models
// emit even when asked for bare JSON.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
