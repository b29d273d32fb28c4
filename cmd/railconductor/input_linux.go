//go:build linux

package main

import (
	"encoding/binary"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Linux joystick backend (/dev/input/js*)
// ============================================================================
// The kernel joystick interface delivers 8-byte events:
//
//	struct js_event { __u32 time; __s16 value; __u8 type; __u8 number; };
//
// Device nodes are opened non-blocking; Sample drains whatever events are
// queued and returns the cached state, so the tick loop never waits on a
// quiet stick. Hats arrive as ABS_HAT*X/Y axes and are folded back into the
// direction bitmask.
// ============================================================================

const (
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80

	jsEventSize = 8

	// ioctl requests (from <linux/joystick.h>)
	jsiocgAxes    = 0x80016a11
	jsiocgButtons = 0x80016a12
	jsiocgAxMap   = 0x80406a32
	jsiocgName128 = 0x80806a13

	// ABS codes for hat axes (from <linux/input-event-codes.h>)
	absHat0X = 0x10
	absHat3Y = 0x17

	axisScale = 32767.0
)

// hatAxisRef locates one half of a hat within the device's axis numbering.
type hatAxisRef struct {
	hat int
	isY bool
}

type joystickDevice struct {
	id   int
	fd   int
	path string
	info DeviceInfo

	axes    []float64
	buttons []bool
	hats    []uint8

	// hatAxes maps a raw js axis number to its hat slot. Axes listed here are
	// excluded from info.Axes.
	hatAxes map[int]hatAxisRef

	connected bool
}

// JoystickSource reads /dev/input/js* nodes matching a glob.
// Safe for use from the effects layer only (single caller).
type JoystickSource struct {
	mu      sync.Mutex
	glob    string
	logger  *slog.Logger
	devices map[int]*joystickDevice
}

// NewJoystickSource builds a source scanning the given device glob
// (typically "/dev/input/js*").
func NewJoystickSource(glob string, logger *slog.Logger) *JoystickSource {
	return &JoystickSource{
		glob:    glob,
		logger:  logger,
		devices: make(map[int]*joystickDevice),
	}
}

// Devices rescans the glob, opens new nodes, and returns the known device set.
func (s *JoystickSource) Devices() []DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scanLocked()

	ids := make([]int, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	infos := make([]DeviceInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, s.devices[id].info)
	}
	return infos
}

// Sample drains pending events for one device and returns its snapshot.
func (s *JoystickSource) Sample(id int) (DeviceSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[id]
	if !ok {
		return DeviceSnapshot{}, false
	}
	if dev.connected {
		s.drainLocked(dev)
	}
	return dev.snapshot(), true
}

// Close releases all open device nodes.
func (s *JoystickSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dev := range s.devices {
		if dev.connected {
			_ = unix.Close(dev.fd)
			dev.connected = false
		}
	}
	return nil
}

// scanLocked opens any new matching nodes and retries disconnected ones.
func (s *JoystickSource) scanLocked() {
	paths, err := filepath.Glob(s.glob)
	if err != nil {
		s.logger.Warn("joystick glob failed", "glob", s.glob, "error", err)
		return
	}

	for _, path := range paths {
		id, ok := joystickID(path)
		if !ok {
			continue
		}
		if dev, exists := s.devices[id]; exists && dev.connected {
			continue
		}

		dev, err := openJoystick(id, path)
		if err != nil {
			// Permission or transient open errors: try again next scan.
			s.logger.Debug("joystick open failed", "path", path, "error", err)
			continue
		}
		s.logger.Info("joystick attached",
			"device", id, "name", dev.info.Name,
			"axes", dev.info.Axes, "buttons", dev.info.Buttons, "hats", dev.info.Hats)
		s.devices[id] = dev
	}
}

// joystickID extracts the numeric suffix of a jsN node path.
func joystickID(path string) (int, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "js") {
		return 0, false
	}
	id, err := strconv.Atoi(base[2:])
	if err != nil {
		return 0, false
	}
	return id, true
}

// openJoystick opens a node non-blocking and reads its capabilities.
func openJoystick(id int, path string) (*joystickDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	var rawAxes, rawButtons uint8
	if err := jsIoctl(fd, jsiocgAxes, unsafe.Pointer(&rawAxes)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := jsIoctl(fd, jsiocgButtons, unsafe.Pointer(&rawButtons)); err != nil {
		unix.Close(fd)
		return nil, err
	}

	var nameBuf [128]byte
	if err := jsIoctl(fd, jsiocgName128, unsafe.Pointer(&nameBuf[0])); err == nil {
		// name is NUL-terminated inside the buffer
	}
	name := string(nameBuf[:])
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	// Axis map tells us which js axis numbers are hat halves.
	var axMap [64]uint8
	hatAxes := make(map[int]hatAxisRef)
	hats := 0
	if err := jsIoctl(fd, jsiocgAxMap, unsafe.Pointer(&axMap[0])); err == nil {
		for i := 0; i < int(rawAxes) && i < len(axMap); i++ {
			code := int(axMap[i])
			if code < absHat0X || code > absHat3Y {
				continue
			}
			ref := hatAxisRef{hat: (code - absHat0X) / 2, isY: (code-absHat0X)%2 == 1}
			hatAxes[i] = ref
			if ref.hat+1 > hats {
				hats = ref.hat + 1
			}
		}
	}

	axes := int(rawAxes) - len(hatAxes)
	if axes < 0 {
		axes = 0
	}

	dev := &joystickDevice{
		id:   id,
		fd:   fd,
		path: path,
		info: DeviceInfo{
			ID:      id,
			Name:    name,
			Axes:    axes,
			Buttons: int(rawButtons),
			Hats:    hats,
		},
		axes:      make([]float64, axes),
		buttons:   make([]bool, int(rawButtons)),
		hats:      make([]uint8, hats),
		hatAxes:   hatAxes,
		connected: true,
	}
	return dev, nil
}

func jsIoctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// drainLocked reads queued js events until the descriptor would block.
// Any other error marks the device disconnected; its cached state stays so
// mapped outputs hold their last value.
func (s *JoystickSource) drainLocked(dev *joystickDevice) {
	var buf [jsEventSize]byte
	for {
		n, err := unix.Read(dev.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.logger.Warn("joystick read failed, marking disconnected",
				"device", dev.id, "path", dev.path, "error", err)
			_ = unix.Close(dev.fd)
			dev.connected = false
			return
		}
		if n < jsEventSize {
			continue
		}
		dev.applyEvent(buf)
	}
}

// applyEvent folds one js_event into the cached state.
func (dev *joystickDevice) applyEvent(buf [jsEventSize]byte) {
	value := int16(binary.LittleEndian.Uint16(buf[4:6]))
	typ := buf[6] &^ jsEventInit
	number := int(buf[7])

	switch typ {
	case jsEventButton:
		if number < len(dev.buttons) {
			dev.buttons[number] = value != 0
		}

	case jsEventAxis:
		if ref, isHat := dev.hatAxes[number]; isHat {
			if ref.hat < len(dev.hats) {
				dev.hats[ref.hat] = applyHatHalf(dev.hats[ref.hat], ref.isY, value)
			}
			return
		}
		// Plain axes keep their raw numbering minus any lower-numbered hat
		// halves, matching how info.Axes was counted.
		idx := number
		for hatAxis := range dev.hatAxes {
			if hatAxis < number {
				idx--
			}
		}
		if idx >= 0 && idx < len(dev.axes) {
			dev.axes[idx] = clampAxis(float64(value) / axisScale)
		}
	}
}

// applyHatHalf merges one hat axis reading into the direction bitmask.
func applyHatHalf(mask uint8, isY bool, value int16) uint8 {
	if isY {
		mask &^= uint8(HatUp | HatDown)
		if value < 0 {
			mask |= uint8(HatUp)
		} else if value > 0 {
			mask |= uint8(HatDown)
		}
		return mask
	}
	mask &^= uint8(HatLeft | HatRight)
	if value < 0 {
		mask |= uint8(HatLeft)
	} else if value > 0 {
		mask |= uint8(HatRight)
	}
	return mask
}

// snapshot copies the cached state into a DeviceSnapshot.
func (dev *joystickDevice) snapshot() DeviceSnapshot {
	snap := DeviceSnapshot{
		Connected: dev.connected,
		Axes:      make([]float64, len(dev.axes)),
		Buttons:   make([]bool, len(dev.buttons)),
		Hats:      make([]uint8, len(dev.hats)),
	}
	copy(snap.Axes, dev.axes)
	copy(snap.Buttons, dev.buttons)
	copy(snap.Hats, dev.hats)
	return snap
}
