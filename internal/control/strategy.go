package control

import (
	"fmt"
	"strings"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// Strategy selects exactly one controller for a run.
type Strategy int

const (
	StrategyDirection Strategy = iota + 1
	StrategyViaPoint
	StrategyWheels
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirection:
		return "direction"
	case StrategyViaPoint:
		return "viapoint"
	case StrategyWheels:
		return "wheels"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "direction", "":
		return StrategyDirection, nil
	case "viapoint", "via_point", "via-point":
		return StrategyViaPoint, nil
	case "wheels", "fixed_wheels":
		return StrategyWheels, nil
	default:
		return 0, fmt.Errorf("%w: %q", dynamo.ErrUnknownStrategy, name)
	}
}

// ListStrategies returns the accepted strategy names.
func ListStrategies() []string {
	return []string{StrategyDirection.String(), StrategyViaPoint.String(), StrategyWheels.String()}
}

// New builds the controller for s. The wheel parameters are only used by
// StrategyWheels.
func New(s Strategy, p Params, w WheelParams, opts ...Option) (dynamo.Controller, error) {
	var (
		ctrl dynamo.Controller
		err  error
	)
	switch s {
	case StrategyDirection:
		ctrl, err = NewDirection(p, opts...)
	case StrategyViaPoint:
		ctrl, err = NewViaPoint(p, opts...)
	case StrategyWheels:
		ctrl, err = NewWheels(w, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownStrategy, s)
	}
	if err != nil {
		return nil, err
	}
	return ctrl, nil
}
