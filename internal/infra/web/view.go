package web

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"voice-assistant/internal/application"
	"voice-assistant/internal/domain"
)

//go:embed page.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

type entryView struct {
	Sender string `json:"sender"`
	Label  string `json:"label"`
	Text   string `json:"text"`
}

// pageState is the JSON and template model of application.State.
type pageState struct {
	Recording    string      `json:"recording"`
	Starting     bool        `json:"starting"`
	CanStart     bool        `json:"can_start"`
	CanStop      bool        `json:"can_stop"`
	CanSubmit    bool        `json:"can_submit"`
	Uploading    bool        `json:"uploading"`
	ClipURL      string      `json:"clip_url,omitempty"`
	ClipType     string      `json:"clip_type,omitempty"`
	JobStatus    string      `json:"job_status,omitempty"`
	Thinking     bool        `json:"thinking"`
	Notice       string      `json:"notice,omitempty"`
	Conversation []entryView `json:"conversation"`
}

func newPageState(st application.State) *pageState {
	ps := &pageState{
		Recording:    string(st.Recording),
		Starting:     st.Starting,
		CanStart:     st.CanStart(),
		CanStop:      st.CanStop(),
		CanSubmit:    st.CanSubmit,
		Uploading:    st.Uploading,
		Thinking:     st.Thinking,
		Notice:       st.Notice,
		Conversation: make([]entryView, 0, len(st.Conversation)),
	}
	if st.Clip != nil {
		ps.ClipURL = st.Clip.URL
		ps.ClipType = st.Clip.MediaType
	}
	if st.Job != nil {
		ps.JobStatus = string(st.Job.Status)
	}
	for _, e := range st.Conversation {
		ps.Conversation = append(ps.Conversation, entryView{
			Sender: string(e.Sender),
			Label:  e.Sender.Label(),
			Text:   e.Text,
		})
	}
	return ps
}

// View renders assistant state to the connected pages.
type View struct {
	hub    *Hub
	logger *slog.Logger

	mu    sync.Mutex
	state application.State
}

func NewView(hub *Hub, logger *slog.Logger) *View {
	v := &View{
		hub:    hub,
		logger: logger,
		state:  application.State{Recording: domain.RecordingIdle},
	}
	hub.setJoin(v.greet)
	return v
}

func (v *View) Render(st application.State) {
	v.mu.Lock()
	v.state = st
	v.mu.Unlock()

	v.hub.Broadcast(serverMessage{Type: "state", State: newPageState(st)})
}

func (v *View) State() application.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) greet(c *client) {
	v.hub.Send(c, serverMessage{Type: "state", State: newPageState(v.State())})
}

// ServePage renders the full page. Forms post back with the same token the
// page was requested with.
func (v *View) ServePage(w http.ResponseWriter, r *http.Request) {
	data := struct {
		State *pageState
		Query template.URL
	}{
		State: newPageState(v.State()),
	}
	if token := r.URL.Query().Get("token"); token != "" {
		data.Query = template.URL("?token=" + url.QueryEscape(token))
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		v.logger.Error("rendering page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	buf.WriteTo(w)
}

// ServeClip serves the current clip for playback. Only the latest clip is
// kept.
func (v *View) ServeClip(w http.ResponseWriter, r *http.Request) {
	clip := v.State().Clip
	if clip == nil || clip.ID != r.PathValue("id") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", clip.MediaType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(clip.Data))
}
