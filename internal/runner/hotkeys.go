package runner

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
)

// Latin-1 keysyms for the hotkey letters
const (
	keysymW xproto.Keysym = 0x77
	keysymQ xproto.Keysym = 0x71
)

// hotkeyModifiers is Ctrl+Alt
const hotkeyModifiers = xproto.ModMaskControl | xproto.ModMask1

// ignoredModifiers are grabbed as variants so Caps Lock and Num Lock don't
// block the hotkeys
var ignoredModifiers = []uint16{
	0,
	xproto.ModMaskLock,
	xproto.ModMask2,
	xproto.ModMaskLock | xproto.ModMask2,
}

type action int

const (
	actionNone action = iota
	actionToggle
	actionQuit
)

// hotkeys holds the keycodes bound to each action
type hotkeys struct {
	toggle []xproto.Keycode
	quit   []xproto.Keycode
}

// match maps a key press onto an action
func (h hotkeys) match(detail xproto.Keycode, state uint16) action {
	if state&hotkeyModifiers != hotkeyModifiers {
		return actionNone
	}
	for _, k := range h.toggle {
		if k == detail {
			return actionToggle
		}
	}
	for _, k := range h.quit {
		if k == detail {
			return actionQuit
		}
	}
	return actionNone
}

// keycodesFor scans a keyboard mapping for keycodes whose first keysym is
// want. keysyms holds perKeycode entries per keycode starting at min.
func keycodesFor(min xproto.Keycode, perKeycode int, keysyms []xproto.Keysym, want xproto.Keysym) []xproto.Keycode {
	if perKeycode <= 0 {
		return nil
	}
	var codes []xproto.Keycode
	for i := 0; i+perKeycode <= len(keysyms); i += perKeycode {
		if keysyms[i] == want {
			codes = append(codes, min+xproto.Keycode(i/perKeycode))
		}
	}
	return codes
}

// grabHotkeys binds Ctrl+Alt+W and Ctrl+Alt+Q on the root window. A key that
// another client already grabbed is logged and left unbound.
func grabHotkeys(conn *xgb.Conn, root xproto.Window) (hotkeys, error) {
	setup := xproto.Setup(conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	mapping, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return hotkeys{}, fmt.Errorf("failed to get keyboard mapping: %w", err)
	}

	per := int(mapping.KeysymsPerKeycode)
	h := hotkeys{
		toggle: keycodesFor(setup.MinKeycode, per, mapping.Keysyms, keysymW),
		quit:   keycodesFor(setup.MinKeycode, per, mapping.Keysyms, keysymQ),
	}

	log := logger.WithComponent("runner")
	for _, code := range append(append([]xproto.Keycode(nil), h.toggle...), h.quit...) {
		for _, extra := range ignoredModifiers {
			err := xproto.GrabKeyChecked(conn, true, root, hotkeyModifiers|extra, code,
				xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
			if err != nil {
				log.Warn().
					Err(err).
					Uint8("keycode", uint8(code)).
					Uint16("modifiers", hotkeyModifiers|extra).
					Msg("Failed to grab hotkey")
			}
		}
	}

	log.Info().
		Int("toggle_keys", len(h.toggle)).
		Int("quit_keys", len(h.quit)).
		Msg("Hotkeys bound: Ctrl+Alt+W toggles, Ctrl+Alt+Q quits")
	return h, nil
}
