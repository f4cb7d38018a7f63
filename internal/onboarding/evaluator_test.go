package onboarding_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"megabot.app/onboarding/internal/catalog"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
)

var _ = Describe("Evaluate", func() {
	var (
		record *model.ProgressRecord
		now    time.Time
	)

	msg := func(text string) onboarding.Message {
		return onboarding.Message{Text: text}
	}

	BeforeEach(func() {
		now = epoch.Add(time.Hour)
		record = newRecord(fiveDays(
			task("task_a", "Task A", model.TaskKindConfirmation, true),
			task("task_b", "Banner upload", model.TaskKindUpload, true),
			task("task_c", "Optional intro", model.TaskKindTextResponse, false),
		))
	})

	It("completes required tasks and closes the day only when all are done", func() {
		res, err := onboarding.Evaluate(record, msg("done with task A"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matched).To(BeTrue())
		Expect(res.TaskID).To(Equal("task_a"))
		Expect(res.DayCompleted).To(BeFalse())

		res, err = onboarding.Evaluate(record, msg("finished my optional intro: I like gaming"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.TaskID).To(Equal("task_c"))
		Expect(res.DayCompleted).To(BeFalse())
		Expect(record.Day(1).Completed).To(BeFalse())
		Expect(record.Day(1).CompletedAt).To(BeNil())

		later := now.Add(time.Minute)
		res, err = onboarding.Evaluate(record, msg("uploaded the banner"), nil, later)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.TaskID).To(Equal("task_b"))
		Expect(res.DayCompleted).To(BeTrue())
		Expect(res.OnboardingCompleted).To(BeFalse())
		Expect(record.Day(1).Completed).To(BeTrue())
		Expect(*record.Day(1).CompletedAt).To(Equal(later))
	})

	It("completes only the first task in catalog order when two match", func() {
		record = newRecord(fiveDays(
			task("task_a", "Task A", model.TaskKindConfirmation, true),
			task("task_a2", "Task A2", model.TaskKindConfirmation, true),
		))

		res, err := onboarding.Evaluate(record, msg("done with task A"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.TaskID).To(Equal("task_a"))

		day := record.Day(1)
		Expect(day.Task("task_a").Completed).To(BeTrue())
		Expect(day.Task("task_a2").Completed).To(BeFalse())
	})

	It("stores the message as the user response", func() {
		_, err := onboarding.Evaluate(record, msg("  Done with task A  "), nil, now)
		Expect(err).NotTo(HaveOccurred())

		t := record.Day(1).Task("task_a")
		Expect(t.UserResponse).NotTo(BeNil())
		Expect(*t.UserResponse).To(Equal("Done with task A"))
		Expect(*t.CompletedAt).To(Equal(now))
	})

	It("truncates very long responses", func() {
		long := "done with task A " + strings.Repeat("x", 2000)
		_, err := onboarding.Evaluate(record, msg(long), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect([]rune(*record.Day(1).Task("task_a").UserResponse)).To(HaveLen(1000))
	})

	It("leaves the record untouched when nothing matches", func() {
		res, err := onboarding.Evaluate(record, msg("what should I do next?"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matched).To(BeFalse())
		for _, t := range record.Day(1).Tasks {
			Expect(t.Completed).To(BeFalse())
		}
	})

	It("needs completion language, not just a mention", func() {
		res, err := onboarding.Evaluate(record, msg("how do I do task A?"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matched).To(BeFalse())
	})

	It("does not treat words that merely start with a completion word as completion", func() {
		res, err := onboarding.Evaluate(record, msg("one sentence about task A"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matched).To(BeFalse())
	})

	It("counts an attached image as completion for upload tasks", func() {
		res, err := onboarding.Evaluate(record, onboarding.Message{
			Text:   "here is my banner",
			Images: []string{"https://cdn.example.com/banner.png"},
		}, nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.TaskID).To(Equal("task_b"))
	})

	It("does not count an image for non-upload tasks", func() {
		res, err := onboarding.Evaluate(record, onboarding.Message{
			Text:   "task A screenshot",
			Images: []string{"https://cdn.example.com/a.png"},
		}, nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matched).To(BeFalse())
	})

	It("skips tasks that are already complete", func() {
		_, err := onboarding.Evaluate(record, msg("done with task A"), nil, now)
		Expect(err).NotTo(HaveOccurred())

		res, err := onboarding.Evaluate(record, msg("done with task A again"), nil, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matched).To(BeFalse())
	})

	Describe("hints", func() {
		It("prefers a hint naming an incomplete task", func() {
			res, err := onboarding.Evaluate(record, msg("done with task A"), &onboarding.Hint{TaskID: "task_c"}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TaskID).To(Equal("task_c"))
			Expect(record.Day(1).Task("task_a").Completed).To(BeFalse())
		})

		It("falls back to keywords for an unknown task id", func() {
			res, err := onboarding.Evaluate(record, msg("done with task A"), &onboarding.Hint{TaskID: "made_up"}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TaskID).To(Equal("task_a"))
		})

		It("ignores hints for tasks of another day", func() {
			res, err := onboarding.Evaluate(record, msg("hello"), &onboarding.Hint{TaskID: "day2_checkin"}, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Matched).To(BeFalse())
		})
	})

	DescribeTable("rejects records that are not active",
		func(status model.ProgressStatus) {
			record.Status = status
			before := record.Day(1).Tasks[0]

			_, err := onboarding.Evaluate(record, msg("done with task A"), &onboarding.Hint{TaskID: "task_a"}, now)
			Expect(err).To(MatchError(onboarding.ErrInactiveRecord))
			Expect(record.Day(1).Tasks[0]).To(Equal(before))
		},
		Entry("paused", model.ProgressStatusPaused),
		Entry("completed", model.ProgressStatusCompleted),
		Entry("inactive", model.ProgressStatusInactive),
	)

	It("completes the onboarding on day 5", func() {
		moveToDay(record, 5, now)
		Expect(record.CurrentDay).To(Equal(5))

		end := now.Add(4 * 24 * time.Hour)
		res, err := onboarding.Evaluate(record, msg("done with the checkin for day 5"), nil, end)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.DayCompleted).To(BeTrue())
		Expect(res.OnboardingCompleted).To(BeTrue())
		Expect(record.Status).To(Equal(model.ProgressStatusCompleted))
		Expect(*record.CompletedAt).To(Equal(end))
	})

	Describe("with the default catalog", func() {
		BeforeEach(func() {
			record = newRecord(catalog.Default().InitializeDays())
		})

		DescribeTable("matches day 1 messages",
			func(m onboarding.Message, want string) {
				Expect(onboarding.MatchTask(record.Day(1), m)).To(WithTransform(func(t *model.TaskState) string {
					if t == nil {
						return ""
					}
					return t.TaskID
				}, Equal(want)))
			},
			Entry("account screenshot", onboarding.Message{Text: "made the account", Images: []string{"a.png"}}, "create_account"),
			Entry("profile confirmation", onboarding.Message{Text: "profile is done, bio too"}, "profile_setup"),
			Entry("niche answer", onboarding.Message{Text: "done, my niche is podcasts"}, "choose_niche"),
			Entry("chatter", onboarding.Message{Text: "hey what's up"}, ""),
		)
	})
})

var _ = Describe("TaskFragments", func() {
	It("uses the id phrase and significant title words", func() {
		t := task("follow_creators", "Follow ten creators in your niche", model.TaskKindConfirmation, true)
		Expect(onboarding.TaskFragments(&t)).To(ConsistOf("follow creators", "follow", "creators", "niche"))
	})

	It("skips short ids", func() {
		t := task("a", "Alpha", model.TaskKindConfirmation, true)
		Expect(onboarding.TaskFragments(&t)).To(ConsistOf("alpha"))
	})
})
