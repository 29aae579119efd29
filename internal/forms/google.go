package forms

import (
	"context"
	"fmt"
	"net/http"

	formsapi "google.golang.org/api/forms/v1"
	"google.golang.org/api/option"
)

// Scope is the single OAuth scope the export flow requests.
const Scope = formsapi.FormsBodyScope

// GoogleAPI calls the Forms REST service with an authorized HTTP client.
type GoogleAPI struct {
	svc *formsapi.Service
}

func NewGoogleAPI(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*GoogleAPI, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := formsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("forms service: %w", err)
	}
	return &GoogleAPI{svc: svc}, nil
}

func (g *GoogleAPI) Create(ctx context.Context, form *formsapi.Form) (*formsapi.Form, error) {
	return g.svc.Forms.Create(form).Context(ctx).Do()
}

func (g *GoogleAPI) Get(ctx context.Context, formID string) (*formsapi.Form, error) {
	return g.svc.Forms.Get(formID).Context(ctx).Do()
}

func (g *GoogleAPI) BatchUpdate(ctx context.Context, formID string, req *formsapi.BatchUpdateFormRequest) error {
	_, err := g.svc.Forms.BatchUpdate(formID, req).Context(ctx).Do()
	return err
}
