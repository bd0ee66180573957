package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var fieldNames = map[string]string{
	"Title":         "title",
	"Description":   "description",
	"Tags":          "tags",
	"Visibility":    "visibility",
	"ScheduledTime": "scheduledTime",
	"SourceURL":     "sourceUrl",
	"ThumbnailURL":  "thumbnailUrl",
	"PlaylistIDs":   "playlistIds",
}

var validate = validator.New()

// scheduleLayouts are tried in order; layouts without a zone are read as local time.
var scheduleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseScheduledTime parses a schedule from RFC3339 or a datetime-local style value.
func ParseScheduledTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, NewValidationError("scheduledTime", "is required")
	}
	for _, layout := range scheduleLayouts {
		var (
			parsed time.Time
			err    error
		)
		if layout == time.RFC3339Nano {
			parsed, err = time.Parse(layout, value)
		} else {
			parsed, err = time.ParseInLocation(layout, value, time.Local)
		}
		if err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, NewValidationError("scheduledTime", fmt.Sprintf("cannot parse %q as a date", value))
}

// ValidateCreate checks a creation payload.
func ValidateCreate(in CreateInput) error {
	verr := collect(validate.Struct(in))
	if in.ScheduledTime.IsZero() {
		verr.add("scheduledTime", "is required")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidateUpdate checks a partial update. An update without fields is rejected.
func ValidateUpdate(u Update) error {
	if u.IsEmpty() {
		verr := NewValidationError("body", ErrEmptyUpdate.Error())
		verr.cause = ErrEmptyUpdate
		return verr
	}
	verr := collect(validate.Struct(u))
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func collect(err error) *ValidationError {
	verr := &ValidationError{}
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		name, ok := fieldNames[fe.Field()]
		if !ok {
			name = fe.Field()
		}
		verr.add(name, describe(fe))
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		return "must be a valid URL"
	case "required":
		return "is required"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
