package arbiter

type Group uint8

const (
	GroupInvalid Group = 0
	GroupSession Group = 1
)

func (g Group) String() string {
	switch g {
	case GroupInvalid:
		return "Invalid Group"
	case GroupSession:
		return "Session"
	default:
		return "Unknown Group"
	}
}
