package cms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWrappedEntry(t *testing.T) {
	raw := map[string]any{
		"id":         float64(7),
		"documentId": "doc-7",
		"attributes": map[string]any{
			"title":     "Launch notes",
			"published": true,
		},
	}

	rec := Normalize(raw)
	assert.Equal(t, "Launch notes", rec.String("title"))
	assert.True(t, rec.Bool("published"))
	assert.Equal(t, uint(7), rec.ID())
	assert.Equal(t, "doc-7", rec.DocumentID())
}

func TestNormalizeFlatEntryPassesThrough(t *testing.T) {
	raw := map[string]any{"id": float64(3), "title": "Flat"}

	rec := Normalize(raw)
	assert.Equal(t, "Flat", rec.String("title"))
	assert.Equal(t, uint(3), rec.ID())
}

func TestNormalizeNil(t *testing.T) {
	assert.Empty(t, Normalize(nil))
}

func TestNormalizeList(t *testing.T) {
	records := NormalizeList([]any{
		map[string]any{"id": float64(1), "attributes": map[string]any{"title": "a"}},
		"not-an-entry",
		map[string]any{"id": float64(2), "title": "b"},
	})

	assert.Len(t, records, 2)
	assert.Equal(t, "a", records[0].String("title"))
	assert.Equal(t, "b", records[1].String("title"))
}

func TestRefPrefersDocumentID(t *testing.T) {
	rec := Record{"id": float64(12), "documentId": "doc-12"}
	assert.Equal(t, "doc-12", rec.Ref())

	rec = Record{"id": float64(12)}
	assert.Equal(t, "12", rec.Ref())

	assert.Equal(t, "", Record{}.Ref())
}

func TestRecordString(t *testing.T) {
	rec := Record{
		"title": "hello",
		"count": float64(5),
		"live":  true,
		"empty": nil,
	}

	assert.Equal(t, "hello", rec.String("title"))
	assert.Equal(t, "5", rec.String("count"))
	assert.Equal(t, "true", rec.String("live"))
	assert.Equal(t, "", rec.String("empty"))
	assert.Equal(t, "", rec.String("missing"))
	assert.Equal(t, "fallback", rec.StringOr("missing", "fallback"))
}

func TestRecordTime(t *testing.T) {
	rec := Record{"date": "2026-03-14T09:30:00Z", "bad": "not a date"}

	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), rec.Time("date"))
	assert.True(t, rec.Time("bad").IsZero())
	assert.True(t, rec.Time("missing").IsZero())
}

func TestFieldsExcludesIdentifiers(t *testing.T) {
	rec := Record{"id": float64(4), "documentId": "doc-4", "title": "keep"}

	fields := rec.Fields()
	assert.Equal(t, map[string]any{"title": "keep"}, fields)
}
