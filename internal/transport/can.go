package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// Command frames carry v in mm/s and w in mrad/s as little-endian int32.
const (
	commandFrameLength = 8
	commandScale       = 1000.0
)

var errOutOfRange = errors.New("value outside the int32 frame range")

// FrameWriter sends a single CAN frame.
type FrameWriter interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
}

type CANSink struct {
	tx   FrameWriter
	id   uint32
	conn net.Conn
}

func NewCANSink(tx FrameWriter, id uint32) *CANSink {
	return &CANSink{tx: tx, id: id}
}

// DialCAN opens a SocketCAN interface such as can0 or vcan0.
func DialCAN(ctx context.Context, iface string, id uint32) (*CANSink, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("can: dial %s: %w", iface, err)
	}
	return &CANSink{
		tx:   socketcan.NewTransmitter(conn),
		id:   id,
		conn: conn,
	}, nil
}

func (s *CANSink) Send(ctx context.Context, u dynamo.Command) error {
	f, err := EncodeCommandFrame(s.id, u)
	if err != nil {
		return err
	}
	if err := s.tx.TransmitFrame(ctx, f); err != nil {
		return fmt.Errorf("can: transmit 0x%X: %w", s.id, err)
	}
	return nil
}

func (s *CANSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func EncodeCommandFrame(id uint32, u dynamo.Command) (can.Frame, error) {
	v, err := scaled(u.V)
	if err != nil {
		return can.Frame{}, fmt.Errorf("can: linear velocity %g: %w", u.V, err)
	}
	w, err := scaled(u.W)
	if err != nil {
		return can.Frame{}, fmt.Errorf("can: angular velocity %g: %w", u.W, err)
	}

	var f can.Frame
	f.ID = id
	f.Length = commandFrameLength
	binary.LittleEndian.PutUint32(f.Data[0:4], uint32(v))
	binary.LittleEndian.PutUint32(f.Data[4:8], uint32(w))
	return f, nil
}

func DecodeCommandFrame(f can.Frame) (dynamo.Command, error) {
	if f.Length != commandFrameLength {
		return dynamo.Command{}, fmt.Errorf("can: frame 0x%X expects DLC %d, got %d", f.ID, commandFrameLength, f.Length)
	}
	v := int32(binary.LittleEndian.Uint32(f.Data[0:4]))
	w := int32(binary.LittleEndian.Uint32(f.Data[4:8]))
	return dynamo.Command{
		V: float64(v) / commandScale,
		W: float64(w) / commandScale,
	}, nil
}

func scaled(x float64) (int32, error) {
	r := math.Round(x * commandScale)
	if math.IsNaN(r) || r > math.MaxInt32 || r < math.MinInt32 {
		return 0, errOutOfRange
	}
	return int32(r), nil
}
