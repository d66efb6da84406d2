// This file is built with the assumption that the program will only be
// connected to a single bluetooth device at a time, for a single print job.
package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

type DeviceType byte

const (
	Service  DeviceType = 0x00
	Writer   DeviceType = 0x02
	Notifier DeviceType = 0x03
)

const (
	// Most BLE stacks accept writes of this size without negotiation.
	maxChunkSize = 512
	chunkGap     = 10 * time.Millisecond
	handshakeGap = 50 * time.Millisecond
	DefaultName  = "D30"
)

type DeviceState byte

const (
	Disconnected DeviceState = iota
	Connecting
	Ready
	OutOfPaper
)

func (s DeviceState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case OutOfPaper:
		return "out of paper"
	default:
		return fmt.Sprintf("DeviceState(%d)", byte(s))
	}
}

// DeviceInfo is what the printer has reported about itself through notifications.
type DeviceInfo struct {
	State           DeviceState
	BatteryLevel    int
	FirmwareVersion string
}

// A DeviceMatcher picks the printer out of the devices seen while scanning.
type DeviceMatcher func(result bluetooth.ScanResult) bool

// MatchName matches devices whose advertised name contains name.
func MatchName(name string) DeviceMatcher {
	name = strings.ToUpper(name)
	return func(result bluetooth.ScanResult) bool {
		return name != "" && strings.Contains(strings.ToUpper(result.LocalName()), name)
	}
}

// MatchAddress matches a device by address (a MAC on Linux and Windows, a
// UUID on macOS).
func MatchAddress(address string) DeviceMatcher {
	return func(result bluetooth.ScanResult) bool {
		return strings.EqualFold(result.Address.String(), address)
	}
}

type BluetoothConnection struct {
	adapter *bluetooth.Adapter
	device  bluetooth.Device
	writer  bluetooth.DeviceCharacteristic
	address bluetooth.Address
	logger  *slog.Logger

	// Progress, if set, is written every chunk of frame data sent.
	Progress io.Writer

	mu   sync.Mutex
	info DeviceInfo
}

func getUUID(t DeviceType) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0xff, byte(t), 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
	})
}

func newBluetoothConnection(logger *slog.Logger) (*BluetoothConnection, error) {
	adapter := bluetooth.DefaultAdapter

	if err := adapter.Enable(); err != nil {
		logger.Error("Failed to enable Bluetooth", "err", err)
		return nil, err
	}

	conn := &BluetoothConnection{adapter: adapter, logger: logger}
	adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected || d.Address != conn.address {
			return
		}
		conn.mu.Lock()
		defer conn.mu.Unlock()
		if conn.info.State != Disconnected {
			logger.Info("Printer disconnected")
			conn.info.State = Disconnected
		}
	})

	return conn, nil
}

// FindBluetooth scans until a device accepted by match shows up, or ctx is done.
func FindBluetooth(ctx context.Context, logger *slog.Logger, match DeviceMatcher) (*BluetoothConnection, error) {
	p, err := newBluetoothConnection(logger)
	if err != nil {
		return nil, &TransportError{Op: "enable bluetooth", Err: err}
	}

	devices := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := p.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if match(result) {
				logger.Info("Found device",
					"deviceName", result.LocalName(),
					"address", result.Address.String(),
				)
				select {
				case devices <- result:
				default:
				}
				adapter.StopScan()
			}
		})
		scanErr <- err
	}()

	dev, err := awaitScan(ctx, devices, scanErr)
	if err != nil {
		if ctx.Err() != nil {
			p.adapter.StopScan()
		}
		return nil, &TransportError{Op: "scan for printer", Err: err}
	}
	p.address = dev.Address
	return p, nil
}

// awaitScan waits for the first matching device, the end of the scan or ctx,
// whichever comes first.
func awaitScan(ctx context.Context, devices <-chan bluetooth.ScanResult, scanErr <-chan error) (bluetooth.ScanResult, error) {
	select {
	case dev := <-devices:
		return dev, nil
	case err := <-scanErr:
		// StopScan after a match ends the scan too, so the match may be waiting
		select {
		case dev := <-devices:
			return dev, nil
		default:
		}
		if err == nil {
			err = errors.New("No devices found")
		}
		return bluetooth.ScanResult{}, err
	case <-ctx.Done():
		return bluetooth.ScanResult{}, fmt.Errorf("No devices found:\n%w", ctx.Err())
	}
}

func (p *BluetoothConnection) Info() DeviceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *BluetoothConnection) IsConnected() bool {
	return p.Info().State != Disconnected
}

// Connect opens the connection and sends the handshake the vendor app sends.
func (p *BluetoothConnection) Connect(ctx context.Context) error {
	if p.IsConnected() {
		return nil
	}

	if err := p.connect(); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	for _, packet := range handshakePackets() {
		if err := p.write(packet); err != nil {
			p.Disconnect()
			return &TransportError{Op: "send handshake", Err: err}
		}
		if err := pause(ctx, handshakeGap); err != nil {
			p.Disconnect()
			return &TransportError{Op: "send handshake", Err: err}
		}
	}

	return nil
}

// Write sends a whole frame, connecting first if needed.
func (p *BluetoothConnection) Write(ctx context.Context, f Frame) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}

	if err := writeChunks(ctx, p.write, f, maxChunkSize, chunkGap, p.Progress); err != nil {
		return &TransportError{Op: "write frame", Err: err}
	}

	p.logger.Debug("Wrote frame to device", "size", len(f))
	return nil
}

func (p *BluetoothConnection) write(data []byte) error {
	_, err := p.writer.WriteWithoutResponse(data)

	if err != nil {
		p.logger.Error("Couldn't write data", "error", err)
	} else {
		p.logger.Debug("Wrote data to device", "size", len(data))
	}

	return err
}

func (p *BluetoothConnection) Disconnect() error {
	if !p.IsConnected() {
		return nil
	}
	p.mu.Lock()
	p.info.State = Disconnected
	p.mu.Unlock()
	return p.device.Disconnect()
}

func (p *BluetoothConnection) connect() error {
	p.logger.Debug("Connecting to device...")
	device, err := p.adapter.Connect(p.address, bluetooth.ConnectionParams{})
	if err != nil {
		p.logger.Error("Failed to connect to device", "err", err)
		return err
	}

	// Discover the primary service (UUID 0xFF00)
	p.logger.Debug("Discovering service...")
	services, err := device.DiscoverServices([]bluetooth.UUID{getUUID(Service)})
	if err != nil || len(services) == 0 {
		p.logger.Error("Failed to discover service", "err", err)
		device.Disconnect()
		return fmt.Errorf("Couldn't discover printer service:\n%w", errors.Join(err, errors.New("service 0xff00 missing")))
	}

	p.logger.Debug("Discovering characteristics...")
	characteristics, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{getUUID(Writer)})
	if err != nil || len(characteristics) == 0 {
		p.logger.Error("Failed to discover characteristics", "err", err)
		device.Disconnect()
		return fmt.Errorf("Couldn't discover writer characteristic:\n%w", errors.Join(err, errors.New("characteristic 0xff02 missing")))
	}
	p.writer = characteristics[0]
	p.device = device

	p.mu.Lock()
	p.info.State = Connecting
	p.mu.Unlock()

	// Status notifications are only logged, so a printer without them still prints.
	notifiers, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{getUUID(Notifier)})
	if err == nil && len(notifiers) > 0 {
		err = notifiers[0].EnableNotifications(func(data []byte) {
			p.handleBluetoothDataFromPrinter(data)
		})
	}
	if err != nil {
		p.logger.Debug("Couldn't enable notifications", "error", err)
		return nil
	}

	status := append(queryBatteryStatus(), queryPaperStatus()...)
	status = append(status, queryFirmwareVersion()...)
	if err := p.write(status); err != nil {
		p.logger.Debug("Couldn't query printer status", "error", err)
	}

	return nil
}

func hasPrefix(d []byte, p ...byte) bool {
	return len(d) >= len(p) && bytes.Equal(d[:len(p)], p)
}

func (p *BluetoothConnection) handleBluetoothDataFromPrinter(d []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case hasPrefix(d, 0x1a, 0x04) && len(d) >= 3:
		p.info.BatteryLevel = int(d[2])
		p.logger.Info("Battery level", "level", p.info.BatteryLevel)
	case hasPrefix(d, 0x1a, 0x07) && len(d) >= 5:
		p.info.FirmwareVersion = fmt.Sprintf("%v.%v.%v", d[2], d[3], d[4])
		p.logger.Debug("Firmware version", "firmwareVersion", p.info.FirmwareVersion)
	case hasPrefix(d, 0x1a, 0x06) && len(d) >= 3 && (d[2] == 0x88 || d[2] == 0x89):
		if d[2]&1 == 1 {
			p.info.State = Ready
		} else {
			p.info.State = OutOfPaper
			p.logger.Warn("Printer reports no paper loaded")
		}
	case hasPrefix(d, 0x1a, 0x0f, 0x0c):
		p.logger.Info("Printer finished printing")
	case hasPrefix(d, 0x1a, 0x3b, 0x04):
		// only seen this with later firmware versions
		p.logger.Debug("Printer info", "info", fmt.Sprintf("%x", d[3:]))
	case hasPrefix(d, 0x01, 0x01):
		p.logger.Debug("Read command successfully")
	default:
		p.logger.Debug("Received unknown notification",
			"data", fmt.Sprintf("%x", d),
		)
	}
}
