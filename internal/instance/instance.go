package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/godbus/dbus/v5"
)

// D-Bus names used for the single-instance lock and remote control
const (
	BusName       = "io.github.bryanchriswhite.MatrixOverlay"
	ObjectPath    = dbus.ObjectPath("/io/github/bryanchriswhite/MatrixOverlay")
	InterfaceName = "io.github.bryanchriswhite.MatrixOverlay.Control"
)

// ErrAlreadyRunning is returned when another overlay owns the bus name
var ErrAlreadyRunning = errors.New("another instance is already running")

// Command is a remote control request received from another process
type Command string

const (
	CommandToggle Command = "toggle"
	CommandQuit   Command = "quit"
)

// Lock holds the well-known bus name for the lifetime of the overlay
type Lock struct {
	conn     *dbus.Conn
	commands chan Command
}

// control is exported on the bus. Method names are part of the D-Bus API.
type control struct {
	commands chan<- Command
}

func (c *control) Toggle() *dbus.Error {
	return c.send(CommandToggle)
}

func (c *control) Quit() *dbus.Error {
	return c.send(CommandQuit)
}

func (c *control) send(cmd Command) *dbus.Error {
	select {
	case c.commands <- cmd:
		return nil
	default:
		return dbus.MakeFailedError(fmt.Errorf("command queue full"))
	}
}

// Acquire connects to the session bus and claims BusName without queueing.
// It returns ErrAlreadyRunning if another process owns it.
func Acquire() (*Lock, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return acquire(conn)
}

func acquire(conn *dbus.Conn) (*Lock, error) {
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, ErrAlreadyRunning
	}

	l := &Lock{
		conn:     conn,
		commands: make(chan Command, 4),
	}
	if err := conn.Export(&control{commands: l.commands}, ObjectPath, InterfaceName); err != nil {
		l.Release()
		return nil, fmt.Errorf("failed to export control object: %w", err)
	}

	logger.WithComponent("instance").Debug().
		Str("name", BusName).
		Msg("Acquired single-instance lock")
	return l, nil
}

// Commands delivers remote control requests
func (l *Lock) Commands() <-chan Command {
	return l.commands
}

// Release gives up the bus name and closes the connection
func (l *Lock) Release() {
	if l == nil || l.conn == nil {
		return
	}
	if _, err := l.conn.ReleaseName(BusName); err != nil {
		logger.WithComponent("instance").Debug().Err(err).Msg("Failed to release bus name")
	}
	l.conn.Close()
	l.conn = nil
}

// Send asks the running instance to perform cmd
func Send(ctx context.Context, cmd Command) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	var method string
	switch cmd {
	case CommandToggle:
		method = "Toggle"
	case CommandQuit:
		method = "Quit"
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	obj := conn.Object(BusName, ObjectPath)
	if call := obj.CallWithContext(ctx, InterfaceName+"."+method, 0); call.Err != nil {
		var dbusErr dbus.Error
		if errors.As(call.Err, &dbusErr) && dbusErr.Name == "org.freedesktop.DBus.Error.ServiceUnknown" {
			return fmt.Errorf("no running instance: %w", call.Err)
		}
		return fmt.Errorf("failed to send %s: %w", cmd, call.Err)
	}
	return nil
}
