package rtmidi

import (
	"fmt"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	"go.uber.org/zap"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var log = logger.GetLogger()

// InPort is a hardware or virtual MIDI input port.
type InPort struct {
	port drivers.In
}

func NewInPort(in drivers.In) *InPort {
	return &InPort{port: in}
}

func (in *InPort) Name() string {
	return in.port.String()
}

func (in *InPort) Listen(fn driver.Listener) (func(), error) {
	stop, err := gomidi.ListenTo(in.port, func(msg gomidi.Message, timestampms int32) {
		fn(midi.Event(msg))
	}, gomidi.HandleError(func(err error) {
		log.Info(fmt.Sprintf("port error: %v", err), zap.String("source", in.Name()), logger.Warning)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on device: %w", err)
	}

	return func() {
		stop()
		err := in.port.Close()
		if err != nil {
			log.Info(fmt.Sprintf("failed to close port: %v", err), zap.String("source", in.Name()), logger.Warning)
		}
	}, nil
}

// GetInPorts lists input ports of the registered driver, sorted by port number.
func GetInPorts() []driver.Source {
	inPorts := gomidi.GetInPorts()

	var sources = make([]driver.Source, 0, len(inPorts))
	for _, p := range inPorts {
		sources = append(sources, NewInPort(p))
	}
	return sources
}

// CreateVirtualPort opens virtual input other applications can connect to.
func CreateVirtualPort(name string) (driver.Source, error) {
	d := drivers.Get()
	if d == nil {
		return nil, fmt.Errorf("failed to get driver")
	}

	rtmidid, ok := d.(*rtmididrv.Driver)
	if !ok {
		return nil, fmt.Errorf("failed to convert driver")
	}

	in, err := rtmidid.OpenVirtualIn(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open virtual input: %w", err)
	}
	return NewInPort(in), nil
}

// PickMidiPort returns n-th input port accepted by filter.
func PickMidiPort(f driver.Filter, idx int) (driver.Source, error) {
	return driver.Pick(GetInPorts(), f, idx)
}
