package model

import "fmt"

// McqItem is one multiple-choice question as produced by generation.
// Options order is significant: it drives both the A, B, C lettering shown
// to the user and the option order of the exported form item.
type McqItem struct {
	Question      string   `json:"question" binding:"required,notblank"`
	Options       []string `json:"options" binding:"required,min=1,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" binding:"required"`
	Reference     string   `json:"reference,omitempty"`
}

// QuizDocument is the structured result of the generation step.
type QuizDocument struct {
	Summary string    `json:"summary"`
	Mcqs    []McqItem `json:"mcqs" binding:"required,min=1,dive"`
}

// IssueKind classifies a problem found on a single McqItem.
type IssueKind string

const (
	IssueEmptyQuestion   IssueKind = "EMPTY_QUESTION"
	IssueNoOptions       IssueKind = "NO_OPTIONS"
	IssueDuplicateOption IssueKind = "DUPLICATE_OPTION"
	IssueAnswerNotInOpts IssueKind = "ANSWER_NOT_IN_OPTIONS"
	IssueAnswerAmbiguous IssueKind = "ANSWER_MATCHES_MULTIPLE_OPTIONS"
)

// ItemIssue flags an McqItem that violates the question invariants.
type ItemIssue struct {
	Index  int       `json:"index"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (i ItemIssue) Error() string {
	return fmt.Sprintf("mcq %d: %s: %s", i.Index, i.Kind, i.Detail)
}

// CorrectIndex returns the position of CorrectAnswer within Options.
// Matching is exact string equality; ok is false when there is no match
// or more than one match.
func (m McqItem) CorrectIndex() (idx int, ok bool) {
	idx = -1
	for i, opt := range m.Options {
		if opt != m.CorrectAnswer {
			continue
		}
		if idx >= 0 {
			return -1, false
		}
		idx = i
	}
	return idx, idx >= 0
}

// Issues reports every invariant violation of the item at position index.
func (m McqItem) Issues(index int) []ItemIssue {
	var issues []ItemIssue
	if m.Question == "" {
		issues = append(issues, ItemIssue{Index: index, Kind: IssueEmptyQuestion, Detail: "question text is empty"})
	}
	if len(m.Options) == 0 {
		issues = append(issues, ItemIssue{Index: index, Kind: IssueNoOptions, Detail: "no options"})
		return issues
	}

	seen := make(map[string]bool, len(m.Options))
	matches := 0
	for _, opt := range m.Options {
		if seen[opt] {
			issues = append(issues, ItemIssue{Index: index, Kind: IssueDuplicateOption, Detail: fmt.Sprintf("option %q appears more than once", opt)})
		}
		seen[opt] = true
		if opt == m.CorrectAnswer {
			matches++
		}
	}

	switch {
	case matches == 0:
		issues = append(issues, ItemIssue{Index: index, Kind: IssueAnswerNotInOpts, Detail: fmt.Sprintf("correct answer %q is not one of the options", m.CorrectAnswer)})
	case matches > 1:
		issues = append(issues, ItemIssue{Index: index, Kind: IssueAnswerAmbiguous, Detail: fmt.Sprintf("correct answer %q matches %d options", m.CorrectAnswer, matches)})
	}
	return issues
}

// Validate checks every item and returns the flagged issues in item order.
// A nil result means the document is safe to export.
func (d QuizDocument) Validate() []ItemIssue {
	var issues []ItemIssue
	for i, item := range d.Mcqs {
		issues = append(issues, item.Issues(i)...)
	}
	return issues
}

// ExportRequest is the payload for starting a form export.
type ExportRequest struct {
	Title string `json:"title" binding:"max=300"`
	QuizDocument
}
