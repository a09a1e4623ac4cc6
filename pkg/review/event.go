package review

// Event kinds reported to an [Observer].
const (
	EventBreadcrumb      = "breadcrumb"
	EventNowReviewing    = "now_reviewing"
	EventScene           = "scene"
	EventSceneStarted    = "scene_started"
	EventSceneDone       = "scene_done"
	EventRatingRequested = "scene_rating_requested"
	EventSceneRated      = "scene_rated"
	EventReviewComplete  = "review_complete"
	EventWord            = "word"
	EventWordRated       = "word_rated"
	EventSync            = "sync"
)

// Breadcrumb is the payload of user-visible progress events.
type Breadcrumb struct {
	Message string   `json:"message"`
	Words   []string `json:"words,omitempty"`
}

// Observer receives progress events from the review core. Implementations
// must not block and must not call back into the emitter.
type Observer interface {
	OnEvent(kind string, payload any)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(kind string, payload any)

// OnEvent implements [Observer].
func (f ObserverFunc) OnEvent(kind string, payload any) { f(kind, payload) }

// NopObserver discards all events.
type NopObserver struct{}

// OnEvent implements [Observer].
func (NopObserver) OnEvent(string, any) {}

// Observers fans one event out to several observers in order.
type Observers []Observer

// OnEvent implements [Observer].
func (os Observers) OnEvent(kind string, payload any) {
	for _, o := range os {
		if o != nil {
			o.OnEvent(kind, payload)
		}
	}
}
