package models

// AccessState is the secondary client's read access to one source chat
type AccessState int

const (
	NoAccess AccessState = iota
	WarmedUp
	JoinBackoff
	AccessOK
)

func (s AccessState) String() string {
	switch s {
	case NoAccess:
		return "NO_ACCESS"
	case WarmedUp:
		return "WARMED_UP"
	case JoinBackoff:
		return "JOIN_BACKOFF"
	case AccessOK:
		return "ACCESS_OK"
	default:
		return "UNKNOWN"
	}
}
