package runtime

import "fmt"

// StatusKind is the coarse state shown to users.
type StatusKind int

const (
	StatusNoGame StatusKind = iota
	StatusLoading
	StatusRunning
	StatusStopped
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusNoGame:
		return "no-game"
	case StatusLoading:
		return "loading"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// Status is the informational state of a Controller.
type Status struct {
	Kind   StatusKind
	Detail string // Error text, or what is being loaded
	Engine string
	Frame  int
}

// String renders the status line text.
func (s Status) String() string {
	switch s.Kind {
	case StatusNoGame:
		return "no game loaded"
	case StatusLoading:
		if s.Detail != "" {
			return "loading " + s.Detail + "…"
		}
		return "loading…"
	case StatusRunning:
		return "game running"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return s.Detail
	}
	return s.Kind.String()
}
