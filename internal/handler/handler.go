package handler

import (
	"sync"
	"time"

	"campusync/internal/domain"
	"campusync/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// requestTimeout bounds every backend round trip started from a chat update
const requestTimeout = 30 * time.Second

// messenger is the part of *tele.Bot used to send and update messages
type messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Handler manages all bot interactions
type Handler struct {
	bot       *tele.Bot
	messenger messenger
	sessions  *service.SessionService
	timetable *service.TimetableService
	grades    *service.GradeService
	logger    *zap.Logger

	// Chat states (in-memory state machine)
	states   map[int64]*domain.ChatData
	stateMux sync.RWMutex

	// Serializes callbacks per user
	callbackLocks map[int64]*sync.Mutex
	callbackMux   sync.Mutex
}

// NewHandler creates a new handler instance
func NewHandler(
	bot *tele.Bot,
	sessions *service.SessionService,
	timetable *service.TimetableService,
	grades *service.GradeService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bot:           bot,
		messenger:     bot,
		sessions:      sessions,
		timetable:     timetable,
		grades:        grades,
		logger:        logger,
		states:        make(map[int64]*domain.ChatData),
		callbackLocks: make(map[int64]*sync.Mutex),
	}
}

// RegisterHandlers registers all bot handlers
func (h *Handler) RegisterHandlers() {
	// Commands
	h.bot.Handle("/start", h.handleStart)
	h.bot.Handle("/login", h.handleLogin)
	h.bot.Handle("/schedule", h.handleSchedule)
	h.bot.Handle("/grades", h.handleGrades)
	h.bot.Handle("/rank", h.handleRank)
	h.bot.Handle("/logout", h.handleLogout)

	// Text messages
	h.bot.Handle(tele.OnText, h.handleText)

	// Callback queries (inline buttons)
	h.bot.Handle(&btnSchedule, h.handleSchedule)
	h.bot.Handle(&btnGrades, h.handleGrades)
	h.bot.Handle(&btnRank, h.handleRank)
	h.bot.Handle(&btnLogin, h.handleLogin)
	h.bot.Handle(&btnSavedLogin, h.handleSavedLogin)
	h.bot.Handle(&btnNewCaptcha, h.handleNewCaptcha)
	h.bot.Handle(&btnSemesters, h.handleSemesters)
	h.bot.Handle(&btnCancel, h.handleCancel)
	h.bot.Handle(&btnMainMenu, h.handleStart)

	// Generic callback handler for dynamic data
	h.bot.Handle(tele.OnCallback, h.handleCallback)
}

// GetState returns the chat state of a user
func (h *Handler) GetState(userID int64) *domain.ChatData {
	h.stateMux.RLock()
	defer h.stateMux.RUnlock()

	state, exists := h.states[userID]
	if !exists {
		return &domain.ChatData{State: domain.ChatIdle}
	}
	copied := *state
	return &copied
}

// SetState sets the chat state of a user
func (h *Handler) SetState(userID int64, state *domain.ChatData) {
	h.stateMux.Lock()
	defer h.stateMux.Unlock()
	h.states[userID] = state
}

// ResetState ends any login conversation, keeping the chosen semester
func (h *Handler) ResetState(userID int64) {
	state := h.GetState(userID)
	h.SetState(userID, &domain.ChatData{State: domain.ChatIdle, Semester: state.Semester})
}

// semester returns the semester the user is browsing
func (h *Handler) semester(userID int64) string {
	if s := h.GetState(userID).Semester; s != "" {
		return s
	}
	return h.timetable.DefaultSemester()
}

func (h *Handler) userLock(userID int64) *sync.Mutex {
	h.callbackMux.Lock()
	defer h.callbackMux.Unlock()

	lock, exists := h.callbackLocks[userID]
	if !exists {
		lock = &sync.Mutex{}
		h.callbackLocks[userID] = lock
	}
	return lock
}

// Inline keyboard buttons
var (
	btnSchedule = tele.Btn{
		Unique: "schedule",
		Text:   "📅 Schedule",
	}
	btnGrades = tele.Btn{
		Unique: "grades",
		Text:   "📊 Grades",
	}
	btnRank = tele.Btn{
		Unique: "rank",
		Text:   "🏅 Ranking",
	}
	btnLogin = tele.Btn{
		Unique: "login",
		Text:   "🔑 Log in",
	}
	btnSavedLogin = tele.Btn{
		Unique: "saved_login",
		Text:   "🔁 Use saved account",
	}
	btnNewCaptcha = tele.Btn{
		Unique: "new_captcha",
		Text:   "🔄 New captcha",
	}
	btnSemesters = tele.Btn{
		Unique: "semesters",
		Text:   "🗂 Semester",
	}
	btnCancel = tele.Btn{
		Unique: "cancel",
		Text:   "❌ Cancel",
	}
	btnMainMenu = tele.Btn{
		Unique: "main_menu",
		Text:   "🏠 Main menu",
	}
)

// mainMenuMarkup returns the main menu keyboard
func mainMenuMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnSchedule, btnGrades),
		menu.Row(btnRank, btnLogin),
	)
	return menu
}

func cancelMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(btnCancel))
	return menu
}

func captchaMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(btnNewCaptcha, btnCancel))
	return menu
}
