package streamidx

// WriteMode selects when an index forwards writes to its durable store.
type WriteMode int

const (
	// Lazy only reaches the durable store via eviction or an explicit
	// Persist/Checkpoint call. This is the default: writes stay purely
	// in-memory until something needs the room or a checkpoint is taken.
	Lazy WriteMode = iota

	// Cow ("copy on write") additionally forwards every Put and RMW to
	// the durable store immediately, so the index never holds data the
	// store doesn't also have a copy of.
	Cow
)

func (m WriteMode) String() string {
	switch m {
	case Lazy:
		return "lazy"
	case Cow:
		return "cow"
	default:
		return "unknown"
	}
}

func (m WriteMode) isCow() bool { return m == Cow }
