package backend

import "fmt"

// QueueKind selects which operation classes a queue accepts.
type QueueKind uint8

const (
	// QueueGraphics executes draw, compute, copy and barrier operations.
	QueueGraphics QueueKind = iota

	// QueueCompute executes compute, copy and barrier operations.
	QueueCompute

	// QueueCopy executes copy and barrier operations.
	QueueCopy
)

// String returns the queue kind name.
func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueCopy:
		return "copy"
	default:
		return fmt.Sprintf("QueueKind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known queue kind.
func (k QueueKind) Valid() bool { return k <= QueueCopy }

// OpClass is the category of a recorded GPU operation.
type OpClass uint8

const (
	OpBarrier OpClass = iota
	OpCopy
	OpCompute
	OpDraw
)

// String returns the operation class name.
func (c OpClass) String() string {
	switch c {
	case OpBarrier:
		return "barrier"
	case OpCopy:
		return "copy"
	case OpCompute:
		return "compute"
	case OpDraw:
		return "draw"
	default:
		return fmt.Sprintf("OpClass(%d)", uint8(c))
	}
}

// Accepts reports whether a queue of kind k can execute operations of class c.
func (k QueueKind) Accepts(c OpClass) bool {
	switch k {
	case QueueGraphics:
		return true
	case QueueCompute:
		return c != OpDraw
	case QueueCopy:
		return c == OpCopy || c == OpBarrier
	default:
		return false
	}
}

// ResourceState is the usage state of an image, as seen by barriers.
type ResourceState uint8

const (
	StatePresent ResourceState = iota
	StateRenderTarget
	StateCopySource
	StateCopyDest
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateRenderTarget:
		return "render-target"
	case StateCopySource:
		return "copy-source"
	case StateCopyDest:
		return "copy-dest"
	default:
		return fmt.Sprintf("ResourceState(%d)", uint8(s))
	}
}

// MessageSeverity is the severity of a validation layer message.
type MessageSeverity uint8

const (
	SeverityCorruption MessageSeverity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
	SeverityMessage
)

// String returns the severity name.
func (s MessageSeverity) String() string {
	switch s {
	case SeverityCorruption:
		return "corruption"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityMessage:
		return "message"
	default:
		return fmt.Sprintf("MessageSeverity(%d)", uint8(s))
	}
}

// MessageID identifies a validation layer message.
type MessageID uint32

// Known-benign validation messages.
const (
	// MessageClearRenderTargetViewMismatchingClearValue fires when a clear
	// color differs from the optimized clear value given at creation.
	MessageClearRenderTargetViewMismatchingClearValue MessageID = 820

	// MessageMapInvalidNullRange and MessageUnmapInvalidNullRange are raised
	// spuriously by graphics debuggers.
	MessageMapInvalidNullRange   MessageID = 1000
	MessageUnmapInvalidNullRange MessageID = 1001
)

// MessageFilter configures how a device reports validation messages.
type MessageFilter struct {
	// BreakOn lists severities that stop execution in a debugger.
	BreakOn []MessageSeverity

	// DenySeverities and DenyIDs are dropped before storage.
	DenySeverities []MessageSeverity
	DenyIDs        []MessageID
}

// Denies reports whether a message with the given severity and id is filtered out.
func (f *MessageFilter) Denies(severity MessageSeverity, id MessageID) bool {
	for _, s := range f.DenySeverities {
		if s == severity {
			return true
		}
	}
	for _, d := range f.DenyIDs {
		if d == id {
			return true
		}
	}
	return false
}

// Breaks reports whether a message with the given severity stops execution.
func (f *MessageFilter) Breaks(severity MessageSeverity) bool {
	for _, s := range f.BreakOn {
		if s == severity {
			return true
		}
	}
	return false
}
