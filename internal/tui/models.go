package tui

type View int

const (
	ViewQuery View = iota
	ViewResults
	ViewPreview
	ViewThrottle
	ViewActions
	ViewHistory
	ViewDetails
)

func (v View) String() string {
	switch v {
	case ViewQuery:
		return "query"
	case ViewResults:
		return "results"
	case ViewPreview:
		return "preview"
	case ViewThrottle:
		return "throttle"
	case ViewActions:
		return "actions"
	case ViewHistory:
		return "history"
	case ViewDetails:
		return "details"
	default:
		return "unknown"
	}
}
