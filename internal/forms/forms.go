// Package forms implements the shared create/edit flow for the write-side
// admin screens: validate required fields, upload an attached asset with
// local MIME and size prechecks, then create or update the record against
// the content API. Each screen instantiates one Controller with its own
// Spec.
package forms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"novasite/internal/cms"
)

// State tracks where a form is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateUploading
	StateSubmitting
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Rule validates one aspect of the submitted fields. It returns the field
// name and message on violation, or ("", "") when satisfied.
type Rule func(fields map[string]string) (field, message string)

// Required builds a presence rule for one field.
func Required(name, label string) Rule {
	return func(fields map[string]string) (string, string) {
		if strings.TrimSpace(fields[name]) == "" {
			return name, label + " is required"
		}
		return "", ""
	}
}

// RequiredUnless builds a presence rule that is waived when another field
// holds the given value. Used for rules like "location required unless the
// event is online".
func RequiredUnless(name, label, otherField, otherValue string) Rule {
	return func(fields map[string]string) (string, string) {
		if strings.EqualFold(fields[otherField], otherValue) {
			return "", ""
		}
		if strings.TrimSpace(fields[name]) == "" {
			return name, label + " is required"
		}
		return "", ""
	}
}

// Upload bounds the asset accepted by one screen.
type Upload struct {
	// FieldName is the payload key the uploaded asset id is embedded under.
	FieldName string
	// AllowedMIME lists acceptable content types, e.g. image/jpeg.
	AllowedMIME []string
	// MaxBytes is the size ceiling checked before any network call.
	MaxBytes int64
	// OptionalOnFailure keeps the record submission going when the upload
	// is rejected by the server, surfacing a warning instead of failing.
	OptionalOnFailure bool
}

// Spec configures a Controller for one entity.
type Spec struct {
	Collection string
	Rules      []Rule
	Upload     *Upload
}

// Controller drives one form instance. Not safe for concurrent use; each
// screen owns its own.
type Controller struct {
	client  *cms.Client
	spec    Spec
	logger  *slog.Logger
	state   State
	errMsg  string
	warning string
}

func NewController(client *cms.Client, spec Spec, logger *slog.Logger) *Controller {
	return &Controller{client: client, spec: spec, logger: logger, state: StateIdle}
}

func (f *Controller) State() State    { return f.state }
func (f *Controller) Err() string     { return f.errMsg }
func (f *Controller) Warning() string { return f.warning }

// Edit returns the form to idle after an error, clearing the message. Any
// field edit in the UI funnels through here.
func (f *Controller) Edit() {
	if f.state == StateError {
		f.state = StateIdle
		f.errMsg = ""
	}
}

// Reset returns the form to its initial state.
func (f *Controller) Reset() {
	f.state = StateIdle
	f.errMsg = ""
	f.warning = ""
}

// Validate runs the configured rules and returns field→message for every
// violation. An empty map means the fields are acceptable.
func (f *Controller) Validate(fields map[string]string) map[string]string {
	errs := make(map[string]string)
	for _, rule := range f.spec.Rules {
		if field, msg := rule(fields); field != "" {
			if _, seen := errs[field]; !seen {
				errs[field] = msg
			}
		}
	}
	return errs
}

// SubmitAsset prechecks and uploads one file, returning the created asset
// id. MIME and size violations fail locally with a descriptive message and
// no network call.
func (f *Controller) SubmitAsset(ctx context.Context, filename, contentType string, data []byte) (uint, error) {
	up := f.spec.Upload
	if up == nil {
		return 0, fmt.Errorf("this form does not accept file uploads")
	}

	if !mimeAllowed(contentType, up.AllowedMIME) {
		f.fail(fmt.Sprintf("File type %s is not accepted. Allowed: %s.", contentType, strings.Join(up.AllowedMIME, ", ")))
		return 0, fmt.Errorf("%s", f.errMsg)
	}
	if int64(len(data)) > up.MaxBytes {
		f.fail(fmt.Sprintf("File is %d bytes; the maximum allowed is %d bytes.", len(data), up.MaxBytes))
		return 0, fmt.Errorf("%s", f.errMsg)
	}

	f.state = StateUploading
	asset, err := f.client.Upload(ctx, filename, contentType, data)
	if err != nil {
		if up.OptionalOnFailure {
			f.warning = "The file could not be uploaded; the entry was saved without it."
			f.logger.Warn("asset upload failed, continuing without attachment", "collection", f.spec.Collection, "error", err)
			f.state = StateIdle
			return 0, nil
		}
		f.fail(err.Error())
		return 0, err
	}
	f.state = StateIdle
	return asset.ID, nil
}

// Submit creates the record, or updates it when ref is non-empty. A non-zero
// assetID is embedded under the configured upload field. Server error
// messages take priority over the generic fallback.
func (f *Controller) Submit(ctx context.Context, ref string, fields map[string]any, assetID uint) (cms.Record, error) {
	if assetID != 0 && f.spec.Upload != nil {
		fields[f.spec.Upload.FieldName] = assetID
	}

	f.state = StateSubmitting
	var (
		record cms.Record
		err    error
	)
	if ref == "" {
		record, err = f.client.Create(ctx, f.spec.Collection, fields)
	} else {
		record, err = f.client.Update(ctx, f.spec.Collection, ref, fields)
	}
	if err != nil {
		f.fail(err.Error())
		return nil, err
	}
	f.state = StateSuccess
	return record, nil
}

func (f *Controller) fail(msg string) {
	f.state = StateError
	f.errMsg = msg
}

func mimeAllowed(contentType string, allowed []string) bool {
	for _, m := range allowed {
		if strings.EqualFold(contentType, m) {
			return true
		}
	}
	return false
}
