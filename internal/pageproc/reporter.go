package pageproc

import "log/slog"

// Reporter observes page processing. Implementations must be cheap and
// synchronous; the processor calls them inline.
type Reporter interface {
	OnPageStart(page int)
	OnCallStart(page int, variant string)
	OnPageError(page int, err error)
	OnPageDone(page int)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) OnPageStart(int)            {}
func (NopReporter) OnCallStart(int, string)    {}
func (NopReporter) OnPageError(int, error)     {}
func (NopReporter) OnPageDone(int)             {}

// SlogReporter logs events with the document label attached.
type SlogReporter struct {
	Logger *slog.Logger
	Doc    string
}

func (r SlogReporter) OnPageStart(page int) {
	r.Logger.Info("processing page", "doc", r.Doc, "page", page)
}

func (r SlogReporter) OnCallStart(page int, variant string) {
	r.Logger.Debug("model call", "doc", r.Doc, "page", page, "variant", variant)
}

func (r SlogReporter) OnPageError(page int, err error) {
	r.Logger.Error("page failed", "doc", r.Doc, "page", page, "error", err)
}

func (r SlogReporter) OnPageDone(page int) {
	r.Logger.Info("page done", "doc", r.Doc, "page", page)
}

var (
	_ Reporter = NopReporter{}
	_ Reporter = SlogReporter{}
)
