package handler

import (
	"context"
	"fmt"
	"strings"

	"campusync/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleSchedule handles /schedule [week]: the cached timetable is shown at
// once and replaced when the refresh settles
func (h *Handler) handleSchedule(c tele.Context) error {
	userID := c.Sender().ID

	week := 0
	if c.Callback() != nil {
		_ = c.Respond()
	} else {
		var err error
		if week, err = parseWeekArg(c.Args()); err != nil {
			return c.Send("⚠️ " + err.Error())
		}
	}

	semester := h.semester(userID)
	h.logger.Info("Schedule requested",
		zap.Int64("user_id", userID),
		zap.String("semester", semester),
		zap.Int("week", week),
	)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snapshot, settled := h.timetable.Load(ctx, semester)
	return presentCacheFirst(ctx, h.messenger, c.Recipient(), h.logger, snapshot, settled,
		func(data domain.TimetableSnapshot, notice string) (string, *tele.ReplyMarkup) {
			view := h.timetable.WeekView(semester, data, week)
			return formatWeekView(view, notice), weekMarkup(view)
		})
}

// handleWeekNavigation redraws the schedule for another week from the
// cached timetable, without a network round trip
func (h *Handler) handleWeekNavigation(c tele.Context, data string) error {
	userID := c.Sender().ID

	week, ok := parseIntSuffix(data, "week_")
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid week"})
	}

	semester := h.semester(userID)
	snapshot, cached := h.timetable.Cached(semester)
	if !cached {
		return c.Respond(&tele.CallbackResponse{Text: "No timetable yet, use /schedule", ShowAlert: true})
	}

	view := h.timetable.WeekView(semester, snapshot, week)
	text := formatWeekView(view, "")
	if err := c.Edit(text, weekMarkup(view)); err != nil {
		if handleErr := h.handleEditError(err, c, userID); handleErr == nil {
			return nil
		}
		return c.Send(text, weekMarkup(view))
	}
	return c.Respond()
}

// handleCourseDetail shows the details of one block as an alert
func (h *Handler) handleCourseDetail(c tele.Context, data string) error {
	userID := c.Sender().ID

	parts := strings.Split(strings.TrimPrefix(data, "detail_"), "_")
	if len(parts) != 2 {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid course"})
	}
	week, okWeek := parseIntSuffix(parts[0], "")
	idx, okIdx := parseIntSuffix(parts[1], "")
	if !okWeek || !okIdx {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid course"})
	}

	semester := h.semester(userID)
	snapshot, cached := h.timetable.Cached(semester)
	if !cached {
		return c.Respond(&tele.CallbackResponse{Text: "No timetable yet, use /schedule", ShowAlert: true})
	}

	view := h.timetable.WeekView(semester, snapshot, week)
	if idx < 0 || idx >= len(view.Blocks) {
		return c.Respond(&tele.CallbackResponse{Text: "The timetable changed, reopen /schedule", ShowAlert: true})
	}

	block := view.Blocks[idx]
	return c.Respond(&tele.CallbackResponse{
		Text:      fmt.Sprintf("%s\n\n%s", block.Name, block.Detail()),
		ShowAlert: true,
	})
}

// handleSemesters lists the semesters to choose from
func (h *Handler) handleSemesters(c tele.Context) error {
	userID := c.Sender().ID
	markup := semesterMarkup(h.timetable.Semesters(), h.semester(userID))
	text := "🗂 Choose a semester:"

	if c.Callback() != nil {
		if err := c.Edit(text, markup); err != nil {
			if handleErr := h.handleEditError(err, c, userID); handleErr == nil {
				return nil
			}
			return c.Send(text, markup)
		}
		return c.Respond()
	}
	return c.Send(text, markup)
}

// handleSemesterSelection switches the browsed semester and loads it
func (h *Handler) handleSemesterSelection(c tele.Context, data string) error {
	userID := c.Sender().ID
	semester := strings.TrimPrefix(data, "sem_")
	if semester == "" {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid semester"})
	}

	state := h.GetState(userID)
	state.Semester = semester
	h.SetState(userID, state)

	h.logger.Info("Semester selected", zap.Int64("user_id", userID), zap.String("semester", semester))
	return h.handleSchedule(c)
}
