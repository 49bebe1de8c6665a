package wizard

import (
	"strings"

	"github.com/cvglobal/aula/internal/content"
	"github.com/cvglobal/aula/internal/model"
)

// ContentKind selects how a step's content is displayed.
type ContentKind string

const (
	ContentUnavailable ContentKind = "unavailable"
	ContentDocument    ContentKind = "document"
	ContentVideoEmbed  ContentKind = "video_embed"
	ContentVideoFile   ContentKind = "video_file"
	ContentForm        ContentKind = "form"
)

// Content is the renderable part of a step.
type Content struct {
	Kind ContentKind
	// URL is the address to frame or play.
	URL string
	// ExternalURL is the original link offered as "open in a new tab".
	ExternalURL string
	// Warning asks the learner to finish the form before moving on.
	Warning bool
}

// Nav describes the previous/next controls.
type Nav struct {
	PrevDisabled bool
	NextDisabled bool
	// IsLast relabels "next" as "finish".
	IsLast bool
}

// View is everything a page needs to draw the current step.
type View struct {
	Course  model.Course
	Step    model.StepKind
	TitleID string
	Index   int
	Total   int
	Content Content
	Nav     Nav

	NeedsAttestation bool
	ShowGrade        bool
	Finished         bool
	ShowCertificate  bool

	// Grade is the last accepted grade when HasGrade is set.
	Grade    float64
	HasGrade bool
	// CertificateURL links the most recently issued certificate.
	CertificateURL string
}

// Number is the one-based step position for display.
func (v View) Number() int {
	return v.Index + 1
}

// Render builds the view for the current step. The state must have an
// active course.
func (c *Controller) Render(st *State) View {
	if !st.Active() {
		return View{Total: model.StepCount}
	}
	step := model.StepAt(st.Cursor)
	last := st.Cursor == model.StepCount-1
	gated := c.gated(st)

	v := View{
		Course:  *st.Course,
		Step:    step,
		TitleID: step.TitleID(),
		Index:   st.Cursor,
		Total:   model.StepCount,
		Content: resolveContent(step, st.Course.URLFor(step)),
		Nav: Nav{
			PrevDisabled: st.Cursor == 0,
			NextDisabled: gated,
			IsLast:       last,
		},
		NeedsAttestation: gated,
		ShowGrade:        last,
		Finished:         st.finished,
		ShowCertificate:  st.certUnlocked,
		CertificateURL:   st.certURL,
	}
	v.Grade, v.HasGrade = st.Grade()
	return v
}

func resolveContent(step model.StepKind, raw string) Content {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Content{Kind: ContentUnavailable}
	}

	switch {
	case step == model.StepMaterial:
		return Content{Kind: ContentDocument, URL: content.ResolveEmbedURL(raw), ExternalURL: raw}
	case step == model.StepVideo && content.IsVideoHost(raw):
		return Content{Kind: ContentVideoEmbed, URL: content.VideoEmbedURL(raw), ExternalURL: raw}
	case step == model.StepVideo:
		return Content{Kind: ContentVideoFile, URL: content.ResolveEmbedURL(raw), ExternalURL: raw}
	default:
		return Content{Kind: ContentForm, URL: content.ResolveEmbedURL(raw), ExternalURL: raw, Warning: true}
	}
}
