package hardware

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"cockpit-service/internal/logger"
	"cockpit-service/internal/types"
)

// InputEvent is a Linux input_event as read from an evdev device.
type InputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// ReadEvent decodes one input event.
func ReadEvent(r io.Reader) (InputEvent, error) {
	var ev InputEvent
	err := binary.Read(r, binary.NativeEndian, &ev)
	return ev, err
}

type ButtonCallback func(cmd types.Command) error

// PanelConfig describes the lamp lines and the button box.
type PanelConfig struct {
	Chip        string
	InputDevice string
	Lamps       map[string]int // lamp name -> line offset
	Buttons     map[uint16]types.Command
}

// LinuxPanel drives the cockpit panel: GPIO lamps and an evdev button box
// whose keys trigger automation commands.
type LinuxPanel struct {
	cfg        PanelConfig
	logger     *logger.Logger
	chip       *gpiocdev.Chip
	lines      map[string]*gpiocdev.Line
	inputFile  *os.File
	callback   ButtonCallback
	mu         sync.RWMutex
	stopChan   chan struct{}
	activeKeys map[uint16]bool
}

func NewLinuxPanel(cfg PanelConfig, l *logger.Logger) *LinuxPanel {
	if len(cfg.Buttons) == 0 {
		cfg.Buttons = DefaultButtons
	}
	return &LinuxPanel{
		cfg:        cfg,
		logger:     l,
		lines:      make(map[string]*gpiocdev.Line),
		stopChan:   make(chan struct{}),
		activeKeys: make(map[uint16]bool),
	}
}

// SetCallback installs the handler for button presses.
func (p *LinuxPanel) SetCallback(cb ButtonCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = cb
}

func (p *LinuxPanel) Initialize() error {
	p.logger.Infof("Initializing cockpit panel")

	if len(p.cfg.Lamps) > 0 {
		chip, err := gpiocdev.NewChip(p.cfg.Chip)
		if err != nil {
			return fmt.Errorf("failed to open GPIO chip %s: %w", p.cfg.Chip, err)
		}
		p.chip = chip

		for name, offset := range p.cfg.Lamps {
			if offset < 0 {
				continue
			}
			line, err := chip.RequestLine(offset,
				gpiocdev.AsOutput(0),
				gpiocdev.WithConsumer(Consumer))
			if err != nil {
				return fmt.Errorf("failed to request GPIO line %d: %w", offset, err)
			}
			p.lines[name] = line
			p.logger.Infof("Configured lamp %s: chip=%s, line=%d", name, p.cfg.Chip, offset)
		}
	}

	if p.cfg.InputDevice == "" {
		return nil
	}
	p.logger.Infof("Opening input device: %s", p.cfg.InputDevice)
	f, err := os.OpenFile(p.cfg.InputDevice, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open input device %s: %w", p.cfg.InputDevice, err)
	}
	p.inputFile = f

	// keep button presses away from other readers such as the desktop
	if err := unix.IoctlSetInt(int(f.Fd()), evIOCGRAB, 1); err != nil {
		p.logger.Warnf("Failed to grab %s: %v", p.cfg.InputDevice, err)
	}

	go p.monitorInputs()
	return nil
}

func (p *LinuxPanel) monitorInputs() {
	p.logger.Infof("Starting button box monitoring")

	for {
		select {
		case <-p.stopChan:
			p.logger.Infof("Stopping button box monitoring")
			return
		default:
			ev, err := ReadEvent(p.inputFile)
			if err != nil {
				if errors.Is(err, os.ErrClosed) {
					return
				}
				p.logger.Warnf("Error reading input: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if ev.Type == EV_KEY {
				p.handleKeyEvent(ev)
			}
		}
	}
}

func (p *LinuxPanel) handleKeyEvent(ev InputEvent) {
	p.mu.Lock()
	if ev.Value == 0 {
		delete(p.activeKeys, ev.Code)
	} else {
		p.activeKeys[ev.Code] = true
	}
	callback := p.callback
	p.mu.Unlock()

	// act on press only: release is 0 and autorepeat is 2
	if ev.Value != 1 {
		return
	}

	cmd, ok := p.cfg.Buttons[ev.Code]
	if !ok {
		p.logger.Debugf("Unmapped key code: %d", ev.Code)
		return
	}
	p.logger.Debugf("Button %d pressed: %s", ev.Code, cmd)
	if callback == nil {
		return
	}
	if err := callback(cmd); err != nil {
		p.logger.Warnf("Error handling button %s: %v", cmd, err)
	}
}

// SetLamp switches a lamp. Unconfigured lamps are ignored.
func (p *LinuxPanel) SetLamp(name string, on bool) error {
	p.mu.RLock()
	line, ok := p.lines[name]
	p.mu.RUnlock()
	if !ok {
		return nil
	}

	val := 0
	if on {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set lamp %s=%v: %w", name, on, err)
	}
	p.logger.Debugf("Lamp %s=%v", name, on)
	return nil
}

func (p *LinuxPanel) Cleanup() {
	close(p.stopChan)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inputFile != nil {
		p.inputFile.Close()
	}
	for name, line := range p.lines {
		line.SetValue(0)
		line.Close()
		p.logger.Debugf("Closed lamp %s", name)
	}
	if p.chip != nil {
		p.chip.Close()
	}
	p.logger.Infof("Panel cleanup complete")
}
