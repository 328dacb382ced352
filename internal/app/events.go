package app

import (
	"sync"

	"github.com/hogliux/collect/internal/download"
	"github.com/hogliux/collect/internal/settings"
)

type EventType string

const (
	EventMenuUpdated EventType = "menu_updated"
	EventDownload    EventType = "download"
	EventNavigate    EventType = "navigate"
	EventNotice      EventType = "notice"
)

// Screens the client is told to move to.
const (
	ScreenFormChooser = "form_chooser"
)

// Notices shown as transient messages.
const (
	NoticeNoConnection = "no_connection"
)

type Event struct {
	Type     EventType       `json:"type"`
	Menu     *Menu           `json:"menu,omitempty"`
	Download *download.Event `json:"download,omitempty"`
	Screen   string          `json:"screen,omitempty"`
	Notice   string          `json:"notice,omitempty"`
}

func noticeEvent(n settings.Notice) Event {
	return Event{Type: EventNotice, Notice: string(n)}
}

// broker fans events out to subscribers. Subscribers run on the
// publisher's goroutine and must not block.
type broker struct {
	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

func newBroker() *broker {
	return &broker{subs: make(map[int]func(Event))}
}

func (b *broker) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
