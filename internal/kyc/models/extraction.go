package models

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// ExtractionStatus records how far document analysis got.
type ExtractionStatus string

const (
	ExtractionOCRSuccessful     ExtractionStatus = "OCR_SUCCESSFUL"
	ExtractionOCRAndFaceSuccess ExtractionStatus = "OCR_AND_FACE_DETECT_SUCCESSFUL"
	ExtractionFailed            ExtractionStatus = "FAILED"
)

// DefaultMaxFields bounds the number of OCR fields kept per document.
const DefaultMaxFields = 64

// BoundingBox is a face region in coordinates normalized to the image size.
type BoundingBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
}

// Valid reports whether the box has positive size and lies within the
// normalized image area.
func (b BoundingBox) Valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return b.Width > 0 && b.Height > 0 && in(b.Width) && in(b.Height) && in(b.Left) && in(b.Top)
}

// ObjectRef addresses a blob in the object store.
type ObjectRef struct {
	Bucket string
	Key    string
}

// ExtractedFields maps canonical document field names to their text.
type ExtractedFields map[string]string

// CanonicalizeFields strips all whitespace from field names, trims values,
// drops empty names or values and keeps at most max fields. When over the
// limit, fields are kept in ascending name order so the result does not
// depend on collaborator ordering.
func CanonicalizeFields(raw map[string]string, max int) ExtractedFields {
	if max <= 0 {
		max = DefaultMaxFields
	}
	out := make(ExtractedFields, len(raw))
	for name, value := range raw {
		name = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	if len(out) <= max {
		return out
	}
	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names[max:] {
		delete(out, name)
	}
	return out
}

// Clone returns an independent copy.
func (f ExtractedFields) Clone() ExtractedFields {
	if f == nil {
		return nil
	}
	out := make(ExtractedFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ExtractionRecord is the structured output of document analysis for one
// session. At most one exists per session; reprocessing replaces it.
type ExtractionRecord struct {
	SessionID       SessionID
	Fields          ExtractedFields
	FaceBoundingBox *BoundingBox
	Status          ExtractionStatus
	Document        ObjectRef
	UpdatedAt       time.Time
}

// HasFace reports whether a usable face region was stored.
func (r *ExtractionRecord) HasFace() bool {
	return r.FaceBoundingBox != nil
}
