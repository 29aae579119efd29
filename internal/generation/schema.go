package generation

import (
	"github.com/google/generative-ai-go/genai"
	"github.com/xeipuuv/gojsonschema"
)

const systemInstruction = `You are an expert educator and exam-setter.
Given some study notes, you will:
1. Produce a clear, exam-focused summary of the notes (short but comprehensive).
2. Create precise, student-ready MCQs directly from the notes (including numericals if present).
3. Provide the correct answer for each MCQ. The correct answer must repeat one of the options exactly, character for character.

Respond ONLY as valid JSON following the given schema.`

const (
	descSummary       = "A concise, exam-focused summary of the input notes."
	descMcqs          = "List of MCQs generated from the notes."
	descQuestion      = "The MCQ question text derived from the notes."
	descOptions       = "Multiple choice options for the question."
	descCorrectAnswer = "The correct answer text exactly matching one of the options."
	descReference     = "Optional: direct reference or section of notes where this question is derived from."
)

// responseSchema is declared to the generative service so it constrains
// its own output to the QuizDocument shape.
func responseSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": str(descSummary),
			"mcqs": {
				Type:        genai.TypeArray,
				Description: descMcqs,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question": str(descQuestion),
						"options": {
							Type:        genai.TypeArray,
							Description: descOptions,
							Items:       &genai.Schema{Type: genai.TypeString},
						},
						"correctAnswer": str(descCorrectAnswer),
						"reference":     str(descReference),
					},
					Required: []string{"question", "options", "correctAnswer"},
				},
			},
		},
		Required: []string{"summary", "mcqs"},
	}
}

// documentSchema is the same contract as JSON Schema, used to check what the
// service actually returned.
var documentSchema = mustCompile(map[string]any{
	"type":     "object",
	"required": []any{"summary", "mcqs"},
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"mcqs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"question", "options", "correctAnswer"},
				"properties": map[string]any{
					"question":      map[string]any{"type": "string"},
					"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"correctAnswer": map[string]any{"type": "string"},
					"reference":     map[string]any{"type": "string"},
				},
			},
		},
	},
})

func mustCompile(schema map[string]any) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic("generation: invalid document schema: " + err.Error())
	}
	return s
}
