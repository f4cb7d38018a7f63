package onboarding

import (
	"strings"
	"time"
	"unicode"

	"megabot.app/onboarding/internal/model"
)

// maxUserResponseLength caps the stored copy of the completing message.
const maxUserResponseLength = 1000

// Message is the part of an inbound chat message the evaluator reads.
type Message struct {
	Text   string
	Images []string
}

// Hint is advisory input from the interpreter naming the task the message
// satisfies. An empty TaskID means the interpreter matched nothing.
type Hint struct {
	TaskID string
}

type Evaluation struct {
	TaskID              string
	Matched             bool
	DayCompleted        bool
	OnboardingCompleted bool
}

// Evaluate completes at most one task of the current day from msg.
//
// A hint naming an incomplete task of the current day wins. Otherwise tasks
// are scanned in catalog order and the first one whose keywords match is
// completed. When nothing matches the record is left untouched.
func Evaluate(r *model.ProgressRecord, msg Message, hint *Hint, now time.Time) (Evaluation, error) {
	if r.Status != model.ProgressStatusActive {
		return Evaluation{}, ErrInactiveRecord
	}

	day := r.CurrentDayProgress()
	if day == nil {
		return Evaluation{}, ErrInvalidDay
	}

	task := hintedTask(day, hint)
	if task == nil {
		task = MatchTask(day, msg)
	}
	if task == nil {
		return Evaluation{}, nil
	}

	response := truncate(strings.TrimSpace(msg.Text), maxUserResponseLength)
	task.Completed = true
	task.CompletedAt = &now
	task.UserResponse = &response

	result := Evaluation{TaskID: task.TaskID, Matched: true}
	result.DayCompleted, result.OnboardingCompleted = CheckDayCompletion(r, now)
	return result, nil
}

func hintedTask(day *model.DayProgress, hint *Hint) *model.TaskState {
	if hint == nil || hint.TaskID == "" {
		return nil
	}
	task := day.Task(hint.TaskID)
	if task == nil || task.Completed {
		return nil
	}
	return task
}

// MatchTask returns the first incomplete task, in catalog order, that the
// message reports as done. It does not modify the day.
func MatchTask(day *model.DayProgress, msg Message) *model.TaskState {
	text := normalize(msg.Text)
	hasImages := len(msg.Images) > 0
	signalsDone := containsPhrase(text, completionPhrases)

	for i := range day.Tasks {
		task := &day.Tasks[i]
		if task.Completed {
			continue
		}
		if !signalsDone && !(hasImages && task.Kind == model.TaskKindUpload) {
			continue
		}
		if mentionsTask(text, task) {
			return task
		}
	}
	return nil
}

var completionPhrases = []string{
	"done",
	"completed",
	"complete",
	"finished",
	"did it",
	"submitted",
	"uploaded",
	"posted",
	"sent",
	"all set",
	"followed",
	"watched",
	"set up",
}

var stopWords = map[string]bool{
	"your": true, "with": true, "from": true, "that": true, "this": true,
	"have": true, "into": true, "about": true, "what": true, "tell": true,
	"share": true, "them": true, "their": true, "minutes": true,
}

// TaskFragments returns the lowercase fragments of the task that count as a
// mention: the id as a phrase plus significant title words.
func TaskFragments(task *model.TaskState) []string {
	var fragments []string
	if id := normalize(strings.ReplaceAll(task.TaskID, "_", " ")); len(id) >= 4 {
		fragments = append(fragments, id)
	}
	for _, word := range strings.Fields(normalize(task.Title)) {
		if len(word) >= 4 && !stopWords[word] {
			fragments = append(fragments, word)
		}
	}
	return fragments
}

// mentionsTask matches fragments as word prefixes so "followed" mentions
// "follow" and "clips" mentions "clip".
func mentionsTask(text string, task *model.TaskState) bool {
	padded := " " + text
	for _, f := range TaskFragments(task) {
		if strings.Contains(padded, " "+f) {
			return true
		}
	}
	return false
}

// normalize lowercases and turns punctuation into spaces.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// containsPhrase matches whole words only.
func containsPhrase(text string, phrases []string) bool {
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
