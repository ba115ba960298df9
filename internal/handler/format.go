package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"campusync/internal/domain"
	"campusync/internal/remote"
	"campusync/internal/service"

	tele "gopkg.in/telebot.v3"
)

const loadingText = "⏳ Loading..."

// loginErrorText turns a login error into a user-facing message
func loginErrorText(err error) string {
	var loginErr *domain.LoginError

	switch {
	case err == nil:
		return "Done."
	case errors.Is(err, domain.ErrValidation):
		return "⚠️ Please fill in every field before submitting."
	case errors.Is(err, domain.ErrLoginInProgress):
		return "⏳ A login is already running, wait for its result."
	case errors.Is(err, domain.ErrServiceUnavailable):
		msg := "🚧 The academic service is under maintenance. Try again later."
		if detail := strings.TrimSpace(strings.TrimPrefix(err.Error(), domain.ErrServiceUnavailable.Error()+":")); detail != "" {
			msg += "\n" + detail
		}
		return msg
	case errors.Is(err, domain.ErrCaptchaRequired):
		return "There is no captcha to refresh. Use /login to sign in."
	case errors.As(err, &loginErr):
		if loginErr.Msg != "" {
			return "❌ Login failed: " + loginErr.Msg
		}
		return "❌ Login failed. Check your student ID and password and try /login again."
	case isTransient(err):
		return "📡 Network error, please try again."
	default:
		return "Something went wrong. Please try again later."
	}
}

// isTransient reports whether retrying the same action may succeed
func isTransient(err error) bool {
	return errors.Is(err, remote.ErrTransport) ||
		errors.Is(err, remote.ErrMalformedResponse) ||
		errors.Is(err, domain.ErrLoginInProgress)
}

// captchaCaption explains why a captcha is shown
func captchaCaption(outcome *domain.LoginOutcome, err error) string {
	var loginErr *domain.LoginError

	switch {
	case err == nil && outcome.Refreshed:
		return "🧩 Here is a new captcha."
	case err == nil:
		return "🧩 Automatic verification failed, a captcha is required."
	case errors.As(err, &loginErr):
		if loginErr.Msg != "" {
			return "❌ " + loginErr.Msg + "\n🧩 Try again with the new captcha."
		}
		return "❌ Wrong captcha or password.\n🧩 Try again with the new captcha."
	case isTransient(err):
		return "📡 Network error, the captcha was used up."
	default:
		return "🧩 A captcha is required."
	}
}

// parseWeekArg reads the optional week argument of /schedule; 0 means the
// current week
func parseWeekArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	week, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || week < 1 || week > service.MaxWeeks {
		return 0, fmt.Errorf("week must be a number from 1 to %d", service.MaxWeeks)
	}
	return week, nil
}

// parseIntSuffix parses the number after prefix in callback data
func parseIntSuffix(data, prefix string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(data, prefix))
	return n, err == nil
}

// formatWeekView renders a week view as message text
func formatWeekView(view domain.WeekView, notice string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📅 %s · Week %d · %s\n", view.Semester, view.Week, time.Month(view.Month))
	if notice != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", notice)
	}

	if len(view.Blocks) == 0 {
		b.WriteString("\nNo classes this week 🎉")
		return b.String()
	}

	byDay := make(map[int][]domain.CourseBlock)
	for _, block := range view.Blocks {
		byDay[block.Day] = append(byDay[block.Day], block)
	}

	for i, day := range view.Days {
		blocks := byDay[i+1]
		if len(blocks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", day.DisplayString())
		for _, block := range blocks {
			fmt.Fprintf(&b, "  %d-%d  %s · %s\n", block.Start, block.End(), block.Name, block.Room)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// weekMarkup builds the week navigation and course detail buttons
func weekMarkup(view domain.WeekView) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := []tele.Row{}

	details := tele.Row{}
	for i, block := range view.Blocks {
		details = append(details, markup.Data("ℹ️ "+block.Name, fmt.Sprintf("detail_%d_%d", view.Week, i)))
		if len(details) == 2 {
			rows = append(rows, details)
			details = tele.Row{}
		}
	}
	if len(details) > 0 {
		rows = append(rows, details)
	}

	nav := tele.Row{}
	if view.Week > 1 {
		nav = append(nav, markup.Data("⬅️", fmt.Sprintf("week_%d", view.Week-1)))
	}
	nav = append(nav, markup.Data(fmt.Sprintf("Week %d", view.Week), "week_0"))
	if view.Week < service.MaxWeeks {
		nav = append(nav, markup.Data("➡️", fmt.Sprintf("week_%d", view.Week+1)))
	}
	rows = append(rows, nav, markup.Row(btnSemesters, btnMainMenu))

	markup.Inline(rows...)
	return markup
}

// semesterMarkup lists the selectable semesters
func semesterMarkup(semesters []string, current string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := []tele.Row{}
	for _, id := range semesters {
		text := id
		if id == current {
			text = "✅ " + id
		}
		rows = append(rows, markup.Row(markup.Data(text, "sem_"+id)))
	}
	rows = append(rows, markup.Row(btnMainMenu))
	markup.Inline(rows...)
	return markup
}

// formatGrades renders the semester-grouped grade report
func formatGrades(groups []domain.SemesterGroup, notice string) string {
	var b strings.Builder

	b.WriteString("📊 Grades\n")
	if notice != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", notice)
	}
	if len(groups) == 0 {
		b.WriteString("\nNo grades yet.")
		return b.String()
	}

	for _, group := range groups {
		fmt.Fprintf(&b, "\n%s\n", group.SemesterName)
		for _, record := range group.Courses {
			mark := "✅"
			if record.IsFail {
				mark = "❌"
			}
			fmt.Fprintf(&b, "%s %s: %s", mark, record.Course, record.Score)
			if record.Credit != "" {
				fmt.Fprintf(&b, " (%s cr)", record.Credit)
			}
			if record.IsRetake {
				b.WriteString(" [retake]")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatRanking renders the ranking summary
func formatRanking(r *domain.Ranking) string {
	return fmt.Sprintf("🏅 Ranking (all semesters)\n\nGPA: %s\nAverage score: %s\nClass rank: %s\nMajor rank: %s\nFailed courses: %s",
		r.GPA, r.AvgScore, r.ClassRank, r.MajorRank, r.FailCount)
}
