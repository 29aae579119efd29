// Package forms compiles a QuizDocument into Google Forms API requests and
// runs the create-then-populate protocol against the service.
package forms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/docquiz-backend/internal/model"
	formsapi "google.golang.org/api/forms/v1"
)

const (
	DefaultTitle         = "Untitled"
	DefaultDocumentTitle = "Form"

	choiceTypeRadio = "RADIO"
	pointsPerItem   = 1
)

var (
	ErrInvalidDocument = errors.New("quiz document cannot be compiled")
	ErrNoQuestions     = fmt.Errorf("%w: it has no questions", ErrInvalidDocument)
)

// CompileError lists every item that would produce an ungraded or wrong
// form question.
type CompileError struct {
	Issues []model.ItemIssue
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

func (e *CompileError) Unwrap() error { return ErrInvalidDocument }

// Plan is the ordered request sequence for one form: the create request
// followed by one item request per question, item i at location index i.
type Plan struct {
	Create *formsapi.Form
	Items  []*formsapi.Request
}

// Len is the number of compiled requests, 1 + number of questions.
func (p *Plan) Len() int { return 1 + len(p.Items) }

// Batch builds the populate call: quiz mode first so grading is accepted,
// then the items in order.
func (p *Plan) Batch() *formsapi.BatchUpdateFormRequest {
	reqs := make([]*formsapi.Request, 0, len(p.Items)+1)
	reqs = append(reqs, &formsapi.Request{
		UpdateSettings: &formsapi.UpdateSettingsRequest{
			Settings:   &formsapi.FormSettings{QuizSettings: &formsapi.QuizSettings{IsQuiz: true}},
			UpdateMask: "quizSettings.isQuiz",
		},
	})
	reqs = append(reqs, p.Items...)
	return &formsapi.BatchUpdateFormRequest{Requests: reqs}
}

// Compile validates doc and translates it. Any item whose correct answer
// does not match exactly one option fails the whole document.
func Compile(title string, doc model.QuizDocument) (*Plan, error) {
	if len(doc.Mcqs) == 0 {
		return nil, ErrNoQuestions
	}
	if issues := doc.Validate(); len(issues) > 0 {
		return nil, &CompileError{Issues: issues}
	}

	plan := &Plan{
		Create: newForm(title),
		Items:  make([]*formsapi.Request, len(doc.Mcqs)),
	}
	for i, m := range doc.Mcqs {
		plan.Items[i] = itemRequest(i, m)
	}
	return plan, nil
}

func newForm(title string) *formsapi.Form {
	title = strings.TrimSpace(title)
	info := &formsapi.Info{Title: title, DocumentTitle: title}
	if title == "" {
		info.Title = DefaultTitle
		info.DocumentTitle = DefaultDocumentTitle
	}
	return &formsapi.Form{Info: info}
}

func itemRequest(index int, m model.McqItem) *formsapi.Request {
	options := make([]*formsapi.Option, len(m.Options))
	for i, opt := range m.Options {
		options[i] = &formsapi.Option{Value: opt}
	}

	return &formsapi.Request{
		CreateItem: &formsapi.CreateItemRequest{
			Item: &formsapi.Item{
				Title:       m.Question,
				Description: m.Reference,
				QuestionItem: &formsapi.QuestionItem{
					Question: &formsapi.Question{
						Required: true,
						ChoiceQuestion: &formsapi.ChoiceQuestion{
							Type:    choiceTypeRadio,
							Options: options,
						},
						Grading: &formsapi.Grading{
							PointValue: pointsPerItem,
							CorrectAnswers: &formsapi.CorrectAnswers{
								Answers: []*formsapi.CorrectAnswer{{Value: m.CorrectAnswer}},
							},
						},
					},
				},
			},
			// Index 0 is the zero value and would be dropped from the JSON.
			Location: &formsapi.Location{Index: int64(index), ForceSendFields: []string{"Index"}},
		},
	}
}
