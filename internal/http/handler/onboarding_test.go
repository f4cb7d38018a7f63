package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"megabot.app/onboarding/internal/catalog"
	"megabot.app/onboarding/internal/http/handler"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/service"
)

func sampleRecord(userID string) *model.ProgressRecord {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return onboarding.NewRecord(1234567890123, userID, "chan-"+userID, catalog.Default().InitializeDays(), now)
}

var _ = Describe("OnboardingHandler", func() {
	var (
		router *gin.Engine
		svc    *mockOnboardingService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockOnboardingService{}
		h := handler.NewOnboardingHandler(svc)

		rg := router.Group("/onboarding")
		rg.GET("/:user_id", h.Get)
		rg.GET("/:user_id/history", h.History)
		rg.POST("/:user_id/start", h.Start)
		rg.POST("/:user_id/advance", h.Advance)
		rg.POST("/:user_id/mute", h.Mute)
		rg.POST("/:user_id/pause", h.Pause)
		rg.POST("/:user_id/resume", h.Resume)
	})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf *bytes.Buffer
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			buf = bytes.NewBuffer(data)
		}
		var req *http.Request
		if buf != nil {
			req = httptest.NewRequest(method, path, buf)
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decode := func(w *httptest.ResponseRecorder) map[string]any {
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	Describe("Get", func() {
		It("returns the live record", func() {
			svc.getFn = func(_ context.Context, userID string) (*model.ProgressRecord, error) {
				Expect(userID).To(Equal("u1"))
				return sampleRecord(userID), nil
			}

			w := do(http.MethodGet, "/onboarding/u1", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["id"]).To(Equal("1234567890123"))
			Expect(resp["current_day"]).To(BeNumerically("==", 1))
			Expect(resp["status"]).To(Equal("active"))
			Expect(resp["days"]).To(HaveLen(5))
		})

		It("returns 404 when the member has no record", func() {
			svc.getFn = func(context.Context, string) (*model.ProgressRecord, error) {
				return nil, onboarding.ErrRecordNotFound
			}

			w := do(http.MethodGet, "/onboarding/u1", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 on collaborator failures", func() {
			svc.getFn = func(context.Context, string) (*model.ProgressRecord, error) {
				return nil, fmt.Errorf("%w: db down", onboarding.ErrCollaboratorUnavailable)
			}

			w := do(http.MethodGet, "/onboarding/u1", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(w)["error"]).To(Equal("failed to load onboarding progress"))
		})
	})

	Describe("History", func() {
		It("lists every record", func() {
			svc.historyFn = func(_ context.Context, userID string) ([]model.ProgressRecord, error) {
				live := sampleRecord(userID)
				old := sampleRecord(userID)
				old.ID = 1
				old.Status = model.ProgressStatusInactive
				return []model.ProgressRecord{*live, *old}, nil
			}

			w := do(http.MethodGet, "/onboarding/u1/history", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["records"]).To(HaveLen(2))
		})
	})

	Describe("Start", func() {
		It("returns 201 when a record is created", func() {
			var gotName string
			svc.startFn = func(_ context.Context, userID, userName string) (*service.StartResult, error) {
				gotName = userName
				return &service.StartResult{Record: sampleRecord(userID), Created: true}, nil
			}

			w := do(http.MethodPost, "/onboarding/u1/start", map[string]string{"user_name": "Clip King"})
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(gotName).To(Equal("Clip King"))
			Expect(decode(w)["created"]).To(BeTrue())
		})

		It("returns 200 for an existing record and accepts an empty body", func() {
			svc.startFn = func(_ context.Context, userID, _ string) (*service.StartResult, error) {
				return &service.StartResult{Record: sampleRecord(userID)}, nil
			}

			w := do(http.MethodPost, "/onboarding/u1/start", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["created"]).To(BeFalse())
		})
	})

	Describe("Advance", func() {
		It("passes force through and reports the outcome", func() {
			var gotForce bool
			svc.advanceFn = func(_ context.Context, userID string, force bool) (*service.AdvanceResult, error) {
				gotForce = force
				rec := sampleRecord(userID)
				rec.CurrentDay = 2
				return &service.AdvanceResult{
					AdvanceResult: onboarding.AdvanceResult{
						Outcome: onboarding.AdvanceOutcomeAdvanced,
						FromDay: 1,
						ToDay:   2,
						Forced:  true,
					},
					Record: rec,
				}, nil
			}

			w := do(http.MethodPost, "/onboarding/u1/advance", map[string]bool{"force": true})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotForce).To(BeTrue())
			resp := decode(w)
			Expect(resp["outcome"]).To(Equal("advanced"))
			Expect(resp["to_day"]).To(BeNumerically("==", 2))
		})

		It("returns 400 for a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/onboarding/u1/advance", bytes.NewBufferString("{force:"))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 for a completed record", func() {
			svc.advanceFn = func(context.Context, string, bool) (*service.AdvanceResult, error) {
				return nil, onboarding.ErrInactiveRecord
			}

			w := do(http.MethodPost, "/onboarding/u1/advance", nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Mute", func() {
		It("sets the mute flag", func() {
			var got bool
			svc.setMutedFn = func(_ context.Context, userID string, muted bool) (*model.ProgressRecord, error) {
				got = muted
				rec := sampleRecord(userID)
				rec.Muted = muted
				return rec, nil
			}

			w := do(http.MethodPost, "/onboarding/u1/mute", map[string]bool{"muted": true})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got).To(BeTrue())
			Expect(decode(w)["muted"]).To(BeTrue())
		})

		It("requires the muted field", func() {
			w := do(http.MethodPost, "/onboarding/u1/mute", map[string]string{})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Pause and Resume", func() {
		It("pauses the record", func() {
			svc.pauseFn = func(_ context.Context, userID string) (*model.ProgressRecord, error) {
				rec := sampleRecord(userID)
				rec.Status = model.ProgressStatusPaused
				return rec, nil
			}

			w := do(http.MethodPost, "/onboarding/u1/pause", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["status"]).To(Equal("paused"))
		})

		It("maps unknown errors to 500", func() {
			svc.resumeFn = func(context.Context, string) (*model.ProgressRecord, error) {
				return nil, errors.New("unexpected")
			}

			w := do(http.MethodPost, "/onboarding/u1/resume", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
