package content

import (
	"novasite/internal/cms"
	"novasite/internal/forms"
)

const (
	mb             = 1 << 20
	imageCeiling   = 10 * mb
	webinarCeiling = 5 * mb
)

var imageMIME = []string{"image/jpeg", "image/png", "image/webp"}

// BlogForm configures the blog create/edit screen: cover image up to 10 MB,
// saved without the image when the upload is rejected server-side.
func BlogForm() forms.Spec {
	return forms.Spec{
		Collection: cms.CollectionBlogs,
		Rules: []forms.Rule{
			forms.Required("title", "Title"),
			forms.Required("author", "Author"),
			forms.Required("content", "Content"),
			forms.Required("date", "Date"),
		},
		Upload: &forms.Upload{
			FieldName:         "cover",
			AllowedMIME:       imageMIME,
			MaxBytes:          imageCeiling,
			OptionalOnFailure: true,
		},
	}
}

// JobForm configures the careers screen. No file attachment.
func JobForm() forms.Spec {
	return forms.Spec{
		Collection: cms.CollectionJobs,
		Rules: []forms.Rule{
			forms.Required("title", "Title"),
			forms.Required("department", "Department"),
			forms.Required("location", "Location"),
			forms.Required("description", "Description"),
		},
	}
}

// WebinarForm configures the webinar screen: promo image up to 5 MB.
func WebinarForm() forms.Spec {
	return forms.Spec{
		Collection: cms.CollectionWebinars,
		Rules: []forms.Rule{
			forms.Required("title", "Title"),
			forms.Required("speaker", "Speaker"),
			forms.Required("date", "Date"),
		},
		Upload: &forms.Upload{
			FieldName:         "image",
			AllowedMIME:       imageMIME,
			MaxBytes:          webinarCeiling,
			OptionalOnFailure: true,
		},
	}
}

// EventForm configures the events screen. Location is only waived for
// online events.
func EventForm() forms.Spec {
	return forms.Spec{
		Collection: cms.CollectionEvents,
		Rules: []forms.Rule{
			forms.Required("title", "Title"),
			forms.Required("date", "Date"),
			forms.RequiredUnless("location", "Location", "type", "online"),
		},
		Upload: &forms.Upload{
			FieldName:         "image",
			AllowedMIME:       imageMIME,
			MaxBytes:          webinarCeiling,
			OptionalOnFailure: true,
		},
	}
}

// ResourceForm configures the downloadable-resource screen: the document
// itself plus metadata. The document is the point of the record, so a
// rejected upload fails the submission outright.
func ResourceForm() forms.Spec {
	return forms.Spec{
		Collection: cms.CollectionResources,
		Rules: []forms.Rule{
			forms.Required("title", "Title"),
			forms.Required("type", "Type"),
			forms.Required("description", "Description"),
		},
		Upload: &forms.Upload{
			FieldName:   "file",
			AllowedMIME: []string{"application/pdf"},
			MaxBytes:    imageCeiling,
		},
	}
}
