// Package webforms replicates the ASP.NET webforms postback protocol used by
// the portal: every page carries three opaque tokens that the next request
// must echo back unchanged.
package webforms

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrMissingElement is returned when an element the protocol requires is
// absent from a page. It is distinct from list elements that are simply
// empty.
var ErrMissingElement = errors.New("missing element")

const (
	FieldViewState          = "__VIEWSTATE"
	FieldViewStateGenerator = "__VIEWSTATEGENERATOR"
	FieldEventValidation    = "__EVENTVALIDATION"
	FieldEventTarget        = "__EVENTTARGET"
	FieldEventArgument      = "__EVENTARGUMENT"
	FieldAsyncPost          = "__ASYNCPOST"
)

// Tokens is the token triple a response hands to the next request. The
// values are opaque and only ever round-tripped.
type Tokens struct {
	ViewState          string `json:"view_state"`
	ViewStateGenerator string `json:"view_state_generator"`
	EventValidation    string `json:"event_validation"`
}

func (t Tokens) IsZero() bool {
	return t == Tokens{}
}

// Apply writes the tokens into a form under their exact field names.
func (t Tokens) Apply(form url.Values) {
	form.Set(FieldViewState, t.ViewState)
	form.Set(FieldViewStateGenerator, t.ViewStateGenerator)
	form.Set(FieldEventValidation, t.EventValidation)
}

// ExtractTokens captures the token triple from a page. Each token is read
// from its hidden input, or from the hidden field records of an async
// postback response.
func ExtractTokens(page *Page) (Tokens, error) {
	viewState, err := page.HiddenField(FieldViewState)
	if err != nil {
		return Tokens{}, err
	}
	generator, err := page.HiddenField(FieldViewStateGenerator)
	if err != nil {
		return Tokens{}, err
	}
	validation, err := page.HiddenField(FieldEventValidation)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		ViewState:          viewState,
		ViewStateGenerator: generator,
		EventValidation:    validation,
	}, nil
}

func missing(what string) error {
	return fmt.Errorf("%w: %s", ErrMissingElement, what)
}
