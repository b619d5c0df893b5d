package chatbox

// Event is a sealed interface representing a streaming event.
// Events are purely semantic. Transport/protocol errors come from
// Next()'s error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventTextDelta represents a text content delta. Index identifies the
// content block within the assembled message.
type EventTextDelta struct {
	Index int
	Delta string
}

func (EventTextDelta) event() {}

// EventThinkingDelta represents a thinking content delta.
type EventThinkingDelta struct {
	Index int
	Delta string
}

func (EventThinkingDelta) event() {}

// EventImage carries a complete generated image.
type EventImage struct {
	Index    int
	Data     []byte
	MimeType string
}

func (EventImage) event() {}

// Interface compliance checks.
var (
	_ Event = EventTextDelta{}
	_ Event = EventThinkingDelta{}
	_ Event = EventImage{}
)

// MaxContentBlocks bounds the block index a streamed event may address.
const MaxContentBlocks = 1024

// ApplyEvent folds evt into content and returns the updated slice. Blocks
// are addressed by the event's Index; gaps are padded with empty text.
// Events whose Index is outside [0, MaxContentBlocks) are dropped.
func ApplyEvent(content []ContentBlock, evt Event) []ContentBlock {
	grow := func(idx int) {
		for len(content) <= idx {
			content = append(content, TextBlock{})
		}
	}
	if i := eventIndex(evt); i < 0 || i >= MaxContentBlocks {
		return content
	}
	switch e := evt.(type) {
	case EventTextDelta:
		grow(e.Index)
		prev, _ := content[e.Index].(TextBlock)
		content[e.Index] = TextBlock{Text: prev.Text + e.Delta}
	case EventThinkingDelta:
		grow(e.Index)
		prev, _ := content[e.Index].(ThinkingBlock)
		prev.Thinking += e.Delta
		content[e.Index] = prev
	case EventImage:
		grow(e.Index)
		content[e.Index] = ImageBlock{Data: e.Data, MimeType: e.MimeType}
	}
	return content
}

func eventIndex(evt Event) int {
	switch e := evt.(type) {
	case EventTextDelta:
		return e.Index
	case EventThinkingDelta:
		return e.Index
	case EventImage:
		return e.Index
	}
	return 0
}
