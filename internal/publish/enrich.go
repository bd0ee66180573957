package publish

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"uploadqueue/internal/task"
)

// LocalChapters writes a chapter block from the description's non-empty lines.
// The first chapter always starts at 00:00 as platforms require.
type LocalChapters struct {
	// Spacing between generated chapter markers, in seconds.
	StepSeconds int
}

func (c LocalChapters) Chapters(ctx context.Context, t *task.VideoTask) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	step := c.StepSeconds
	if step <= 0 {
		step = 60
	}
	titles := []string{"Intro"}
	for _, line := range strings.Split(t.Description, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(titles) < 10 {
			titles = append(titles, firstWords(line, 6))
		}
	}
	var b strings.Builder
	b.WriteString("Chapters:\n")
	for i, title := range titles {
		offset := i * step
		fmt.Fprintf(&b, "%02d:%02d %s\n", offset/60, offset%60, title)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// HashtagDescriber appends the task tags as hashtags to the description.
type HashtagDescriber struct{}

func (HashtagDescriber) Describe(ctx context.Context, t *task.VideoTask) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if h := hashtag(tag); h != "" {
			tags = append(tags, h)
		}
	}
	if len(tags) == 0 {
		return t.Description, nil
	}
	return strings.TrimRight(t.Description, "\n") + "\n\n" + strings.Join(tags, " "), nil
}

func hashtag(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
