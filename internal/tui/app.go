package tui

import (
	"context"
	"strconv"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/session"
)

// Session is the part of the session controller the dashboard drives.
type Session interface {
	Init(ctx context.Context) session.Snapshot
	Login(ctx context.Context, email, password string) session.LoginResult
	Logout()
	RefreshUser(ctx context.Context) error
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Data loads what the analytics, admin and developer screens show.
type Data interface {
	ListUsers(ctx context.Context) ([]platform.Account, error)
	ListDirections(ctx context.Context) ([]platform.Direction, error)
	ListJobs(ctx context.Context) ([]platform.Job, error)
	VKSummary(ctx context.Context, directionID int) (*platform.VKSummary, error)
	VKBreakdown(ctx context.Context, breakdown string, directionID int) ([]platform.Bucket, error)
	SocialAccounts(ctx context.Context, platform string, directionID int) ([]platform.SocialAccount, error)
}

type appKeys struct {
	Reload key.Binding
	Logout key.Binding
	Quit   key.Binding
	Nav    key.Binding
	Submit key.Binding
	Next   key.Binding
	Cycle  key.Binding
}

func (k appKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Nav, k.Cycle, k.Reload, k.Logout, k.Quit}
}

func (k appKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = appKeys{
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Logout: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "logout")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Nav:    key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "open")),
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "sign in")),
	Next:   key.NewBinding(key.WithKeys("tab", "shift+tab", "up", "down"), key.WithHelp("tab", "next field")),
	Cycle:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "next direction")),
}

type snapshotMsg struct {
	snap session.Snapshot
}

type restoredMsg struct {
	snap session.Snapshot
}

type loginDoneMsg struct {
	result session.LoginResult
}

type reloadDoneMsg struct {
	err error
}

type dataMsg struct {
	route      nav.Route
	users      []platform.Account
	directions []platform.Direction
	jobs       []platform.Job
	analytics  *analyticsView
	err        error
}

// analyticsView is what the analytics screen shows for one direction.
// Direction is nil when there are no directions yet.
type analyticsView struct {
	direction *platform.Direction
	position  int
	total     int
	summary   *platform.VKSummary
	gender    []platform.Bucket
	accounts  []platform.SocialAccount
}

// App is the dashboard model. Every screen change goes through the router,
// so guards apply to the dashboard exactly as they do to the CLI.
type App struct {
	ctx    context.Context
	ctrl   Session
	data   Data
	router *nav.Router

	snap     session.Snapshot
	route    nav.Route
	decision nav.Decision

	updates     <-chan session.Snapshot
	unsubscribe func()

	email    textinput.Model
	password textinput.Model
	busy     bool

	users      []platform.Account
	directions []platform.Direction
	jobs       []platform.Job
	analytics  *analyticsView
	dirIndex   int
	loading    bool

	spinner  spinner.Model
	help     help.Model
	notice   string
	lastErr  string
	width    int
	quitting bool

	styles Styles
}

// AppOption configures an App.
type AppOption func(*App)

// WithContext sets the context used for API calls.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) { a.ctx = ctx }
}

// WithStartRoute sets the first route to open.
func WithStartRoute(r nav.Route) AppOption {
	return func(a *App) { a.route = r }
}

// NewApp creates the dashboard. It subscribes to ctrl immediately; the
// subscription ends when the app quits.
func NewApp(ctrl Session, data Data, router *nav.Router, opts ...AppOption) App {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email    "
	email.Focus()

	password := textinput.New()
	password.Prompt = "Password "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	a := App{
		ctx:      context.Background(),
		ctrl:     ctrl,
		data:     data,
		router:   router,
		route:    nav.RouteRoot,
		email:    email,
		password: password,
		spinner:  sp,
		help:     help.New(),
		styles:   DefaultStyles(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	a.updates, a.unsubscribe = ctrl.Subscribe()
	a.snap = ctrl.Snapshot()
	a.decision = nav.Decision{Outcome: nav.Pending}
	return a
}

// Init starts the spinner, the session listener and the session restore.
func (a App) Init() tea.Cmd {
	ctx, ctrl := a.ctx, a.ctrl
	restore := func() tea.Msg {
		return restoredMsg{snap: ctrl.Init(ctx)}
	}
	return tea.Batch(a.spinner.Tick, a.listen(), restore)
}

func (a App) listen() tea.Cmd {
	ch := a.updates
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{snap: snap}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.help.Width = msg.Width
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case snapshotMsg:
		a.snap = msg.snap
		return a, tea.Batch(a.navigate(a.route, false), a.listen())

	case restoredMsg:
		a.snap = msg.snap
		return a, a.navigate(a.route, false)

	case loginDoneMsg:
		a.busy = false
		a.password.SetValue("")
		if !msg.result.OK {
			a.lastErr = msg.result.Error
			return a, nil
		}
		a.lastErr = ""
		a.snap = a.ctrl.Snapshot()
		return a, a.navigate(nav.Route(authz.DefaultLandingRoute(msg.result.Roles)), false)

	case reloadDoneMsg:
		a.loading = false
		if msg.err != nil {
			a.lastErr = errors.Message(msg.err)
		}
		a.snap = a.ctrl.Snapshot()
		return a, a.navigate(a.route, true)

	case dataMsg:
		if msg.route != a.route {
			return a, nil
		}
		a.loading = false
		if msg.err != nil {
			a.lastErr = errors.Message(msg.err)
			return a, nil
		}
		a.lastErr = ""
		a.users, a.directions, a.jobs = msg.users, msg.directions, msg.jobs
		a.analytics = msg.analytics
		return a, nil

	case tea.KeyMsg:
		if a.decision.Screen == nav.ScreenLogin && a.decision.Outcome == nav.Render {
			return a.updateLogin(msg)
		}
		return a.handleKey(msg)
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return a.quit()

	case key.Matches(msg, keys.Logout):
		if a.snap.Authenticated() {
			a.ctrl.Logout()
			a.notice = "Signed out"
			a.snap = a.ctrl.Snapshot()
			return a, a.navigate(a.route, false)
		}

	case key.Matches(msg, keys.Reload):
		if a.snap.Authenticated() {
			a.loading = true
			ctx, ctrl := a.ctx, a.ctrl
			return a, func() tea.Msg { return reloadDoneMsg{err: ctrl.RefreshUser(ctx)} }
		}

	case key.Matches(msg, keys.Cycle):
		if a.decision.Screen == nav.ScreenAnalytics && a.decision.Outcome == nav.Render {
			a.dirIndex++
			return a, a.load()
		}

	case key.Matches(msg, keys.Nav):
		n, _ := strconv.Atoi(msg.String())
		menu := a.router.Menu(a.snap.Roles())
		if a.snap.Authenticated() && n >= 1 && n <= len(menu) {
			a.notice = ""
			return a, a.navigate(menu[n-1].Route, false)
		}
	}
	return a, nil
}

func (a App) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return a.quit()

	case key.Matches(msg, keys.Next):
		if a.email.Focused() {
			a.email.Blur()
			return a, a.password.Focus()
		}
		a.password.Blur()
		return a, a.email.Focus()

	case key.Matches(msg, keys.Submit):
		if a.busy {
			return a, nil
		}
		if a.email.Focused() && a.password.Value() == "" {
			a.email.Blur()
			return a, a.password.Focus()
		}
		a.busy = true
		a.lastErr = ""
		a.notice = ""
		ctx, ctrl := a.ctx, a.ctrl
		email, password := a.email.Value(), a.password.Value()
		return a, func() tea.Msg {
			return loginDoneMsg{result: ctrl.Login(ctx, email, password)}
		}
	}

	var cmd tea.Cmd
	if a.email.Focused() {
		a.email, cmd = a.email.Update(msg)
	} else {
		a.password, cmd = a.password.Update(msg)
	}
	return a, cmd
}

func (a App) quit() (tea.Model, tea.Cmd) {
	a.quitting = true
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return a, tea.Quit
}

// navigate resolves route against the current snapshot and loads what the
// reached screen shows, when it changed or reload is set.
func (a *App) navigate(route nav.Route, reload bool) tea.Cmd {
	reached, d, err := a.router.Navigate(route, a.snap)
	if err != nil {
		a.lastErr = err.Error()
		return nil
	}
	changed := reached != a.route || d != a.decision
	a.route, a.decision = reached, d
	if d.Outcome != nav.Render || !(changed || reload) {
		return nil
	}
	return a.load()
}

func (a *App) load() tea.Cmd {
	ctx, data, route := a.ctx, a.data, a.route
	var fetch func() dataMsg
	switch a.decision.Screen {
	case nav.ScreenUsers:
		fetch = func() dataMsg {
			users, err := data.ListUsers(ctx)
			return dataMsg{route: route, users: users, err: err}
		}
	case nav.ScreenDirections:
		fetch = func() dataMsg {
			dirs, err := data.ListDirections(ctx)
			return dataMsg{route: route, directions: dirs, err: err}
		}
	case nav.ScreenJobs:
		fetch = func() dataMsg {
			jobs, err := data.ListJobs(ctx)
			return dataMsg{route: route, jobs: jobs, err: err}
		}
	case nav.ScreenAnalytics:
		index := a.dirIndex
		fetch = func() dataMsg {
			view, err := loadAnalytics(ctx, data, nav.AnalyticsPlatform(route), index)
			return dataMsg{route: route, analytics: view, err: err}
		}
	default:
		return nil
	}
	a.loading = true
	return func() tea.Msg { return fetch() }
}

// loadAnalytics fetches the figures for the index-th direction, wrapping
// around the list.
func loadAnalytics(ctx context.Context, data Data, platformName string, index int) (*analyticsView, error) {
	dirs, err := data.ListDirections(ctx)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return &analyticsView{}, nil
	}
	pos := index % len(dirs)
	view := &analyticsView{direction: &dirs[pos], position: pos + 1, total: len(dirs)}
	id := view.direction.ID

	if platformName != "vk" {
		view.accounts, err = data.SocialAccounts(ctx, platformName, id)
		return view, err
	}
	if view.summary, err = data.VKSummary(ctx, id); err != nil {
		return nil, err
	}
	if view.gender, err = data.VKBreakdown(ctx, platform.BreakdownGender, id); err != nil {
		return nil, err
	}
	return view, nil
}

// Route returns the route currently shown.
func (a App) Route() nav.Route {
	return a.route
}

// Decision returns how the current route resolved.
func (a App) Decision() nav.Decision {
	return a.decision
}
