package sensor

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/jacobsa/go-serial/serial"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
)

const (
	pms5003Start1 = 0x42
	pms5003Start2 = 0x4D

	// 2 length bytes, 13 data words, 1 checksum word
	pms5003FrameLen = 30

	// resync attempts before a read is declared failed
	pms5003MaxSkew = 64
)

// PMS5003 is the particulate matter sensor, a serial device that
// streams 32-byte frames. Not fitted on the basic Enviro board.
type PMS5003 struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

func NewPMS5003(device string) (*PMS5003, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:              device,
		BaudRate:              9600,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		InterCharacterTimeout: 500,
	})
	if err != nil {
		return nil, errors.New().Wrap(ErrDeviceInitFailed, err).WithData(device)
	}

	return &PMS5003{
		port:   port,
		reader: bufio.NewReader(port),
	}, nil
}

func (*PMS5003) Name() string {
	return "pms5003"
}

func (*PMS5003) Quantities() []Quantity {
	return []Quantity{PM1, PM2_5, PM10}
}

func (p *PMS5003) Read(_ context.Context) (Readings, error) {
	frame, err := p.readFrame()
	if err != nil {
		return nil, err
	}

	// Words 1-3 after the length word are PM1.0/2.5/10 in ug/m3
	return Readings{
		PM1:   float64(binary.BigEndian.Uint16(frame[2:4])),
		PM2_5: float64(binary.BigEndian.Uint16(frame[4:6])),
		PM10:  float64(binary.BigEndian.Uint16(frame[6:8])),
	}, nil
}

func (p *PMS5003) Close() error {
	return p.port.Close()
}

// readFrame scans the stream for the frame header, then reads and
// checksums the frame body.
func (p *PMS5003) readFrame() ([]byte, error) {
	errFactory := errors.New()

	synced := false
	for skew := 0; skew < pms5003MaxSkew; skew++ {
		b, err := p.reader.ReadByte()
		if err != nil {
			return nil, errFactory.Wrap(ErrReadFailed, err).WithData("pms5003")
		}
		if b != pms5003Start1 {
			continue
		}

		b, err = p.reader.ReadByte()
		if err != nil {
			return nil, errFactory.Wrap(ErrReadFailed, err).WithData("pms5003")
		}
		if b == pms5003Start2 {
			synced = true
			break
		}
	}
	if !synced {
		return nil, errFactory.WithData(ErrBadFrame, "pms5003 header not found")
	}

	frame := make([]byte, pms5003FrameLen)
	if _, err := io.ReadFull(p.reader, frame); err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err).WithData("pms5003")
	}

	length := binary.BigEndian.Uint16(frame[0:2])
	if int(length) != pms5003FrameLen-2 {
		return nil, errFactory.WithData(ErrBadFrame, length)
	}

	sum := uint16(pms5003Start1) + uint16(pms5003Start2)
	for _, b := range frame[:pms5003FrameLen-2] {
		sum += uint16(b)
	}
	if sum != binary.BigEndian.Uint16(frame[pms5003FrameLen-2:]) {
		return nil, errFactory.New(ErrChecksum)
	}

	return frame, nil
}
