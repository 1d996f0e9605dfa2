package arbitrage

import "fmt"

// Direction selects which venue is bought on and which is sold on.
type Direction string

const (
	// DirectionAToB buys on venue A and sells on venue B.
	DirectionAToB Direction = "a-to-b"

	// DirectionBToA buys on venue B and sells on venue A.
	DirectionBToA Direction = "b-to-a"
)

// ParseDirection accepts "a-to-b" or "b-to-a". Empty input means a-to-b.
func ParseDirection(input string) (Direction, error) {
	switch Direction(input) {
	case "", DirectionAToB:
		return DirectionAToB, nil
	case DirectionBToA:
		return DirectionBToA, nil
	default:
		return "", fmt.Errorf("unknown direction %q", input)
	}
}

// String returns a human-readable description of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionBToA:
		return "buy on B, sell on A"
	default:
		return "buy on A, sell on B"
	}
}
