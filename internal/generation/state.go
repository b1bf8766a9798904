package generation

// State is the lifecycle state of a Session
type State int

const (
	Idle State = iota
	Connecting
	Streaming
	GeneratingAsset
	Complete
	AssetComplete
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case GeneratingAsset:
		return "generating_asset"
	case Complete:
		return "complete"
	case AssetComplete:
		return "asset_complete"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further frames are consumed in s
func (s State) Terminal() bool {
	return s == Complete || s == AssetComplete || s == Error
}

// Succeeded reports whether s carries a usable result
func (s State) Succeeded() bool {
	return s == Complete || s == AssetComplete
}
