package models

const (
	// BalloonStatusKey is the fixed key of the singleton balloon state.
	BalloonStatusKey = "globalBalloonStatus"

	MinFillStatus = 0
	MaxFillStatus = 100
)

// Balloon is the shared counter resource. Field order matters: the ETag is
// computed over its JSON encoding.
type Balloon struct {
	FillStatus int `json:"fillStatus"`
}

// DefaultBalloon is the state used when nothing has been stored yet.
func DefaultBalloon() Balloon {
	return Balloon{FillStatus: MinFillStatus}
}

// IsFull reports whether the counter reached its terminal value.
func (b Balloon) IsFull() bool {
	return b.FillStatus >= MaxFillStatus
}

// Next returns the only legal successor value.
func (b Balloon) Next() int {
	return b.FillStatus + 1
}
