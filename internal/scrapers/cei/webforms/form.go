package webforms

import "net/url"

// Postback describes the control that triggers a postback.
type Postback struct {
	// ScriptManager is the field name of the page's script manager, its value
	// marks the request as a partial (AJAX) postback.
	ScriptManager string
	// UpdatePanel is the panel the partial postback refreshes.
	UpdatePanel string
	// Trigger is the control that fires the postback.
	Trigger string
	// ByEvent sends Trigger as __EVENTTARGET (dropdown changes) instead of as
	// a submitted button.
	ByEvent bool
	// ButtonText is the submitted value of a button trigger.
	ButtonText string
}

// NewForm builds the body of a partial postback carrying `tokens`. Callers
// add their own selection fields to the returned values.
func NewForm(tokens Tokens, pb Postback) url.Values {
	form := url.Values{}
	form.Set(pb.ScriptManager, pb.UpdatePanel+"|"+pb.Trigger)
	if pb.ByEvent {
		form.Set(FieldEventTarget, pb.Trigger)
	} else {
		form.Set(FieldEventTarget, "")
		form.Set(pb.Trigger, pb.ButtonText)
	}
	form.Set(FieldEventArgument, "")
	tokens.Apply(form)
	form.Set(FieldAsyncPost, "true")
	return form
}
