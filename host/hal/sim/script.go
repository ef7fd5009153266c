package sim

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/shlex"
)

// ErrScript is returned by ParseScript for malformed scripts.
var ErrScript = errors.New("invalid device script")

// Op is a device script action.
type Op uint8

// Script actions.
const (
	OpType    Op = iota // Type Text on a keyboard
	OpPress             // Hold Keys with modifiers Mod
	OpRelease           // Release every key
	OpMove              // Move a mouse by DX, DY with Buttons held
	OpWait              // Pause for Wait
	OpDetach            // Disconnect the function
	OpAttach            // Reconnect the function
)

// String returns the script keyword of o.
func (o Op) String() string {
	switch o {
	case OpType:
		return "type"
	case OpPress:
		return "press"
	case OpRelease:
		return "release"
	case OpMove:
		return "move"
	case OpWait:
		return "wait"
	case OpDetach:
		return "detach"
	case OpAttach:
		return "attach"
	default:
		return "unknown"
	}
}

// Step is one parsed script action.
type Step struct {
	Op       Op
	Text     string
	Mod      byte
	Keys     []byte
	Buttons  byte
	DX, DY   int8
	Wait     time.Duration
	LowSpeed bool
}

// ParseScript parses a whitespace separated device script. Words are
// split with shell quoting rules, so text with spaces can be quoted:
//
//	type 'Hello, world\n' wait 500ms
//	press 0x02 0x04 0x05 release
//	move 1 10 -5
//	detach wait 1s attach low
//
// press takes a modifier byte followed by key usages up to the next
// keyword. Numbers accept any Go integer literal prefix.
func ParseScript(s string) ([]Step, error) {
	words, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScript, err)
	}

	var steps []Step
	for i := 0; i < len(words); i++ {
		w := words[i]
		arg := func() (string, error) {
			if i+1 >= len(words) {
				return "", fmt.Errorf("%w: %s needs an argument", ErrScript, w)
			}
			i++
			return words[i], nil
		}

		switch w {
		case "type":
			text, err := arg()
			if err != nil {
				return nil, err
			}
			steps = append(steps, Step{Op: OpType, Text: unescape(text)})

		case "press":
			a, err := arg()
			if err != nil {
				return nil, err
			}
			mod, err := parseByte(a)
			if err != nil {
				return nil, err
			}
			st := Step{Op: OpPress, Mod: mod}
			for i+1 < len(words) && !isKeyword(words[i+1]) {
				i++
				k, err := parseByte(words[i])
				if err != nil {
					return nil, err
				}
				st.Keys = append(st.Keys, k)
			}
			steps = append(steps, st)

		case "release":
			steps = append(steps, Step{Op: OpRelease})

		case "move":
			st := Step{Op: OpMove}
			var v [3]int64
			for j := range v {
				a, err := arg()
				if err != nil {
					return nil, err
				}
				if v[j], err = strconv.ParseInt(a, 0, 8); err != nil {
					return nil, fmt.Errorf("%w: move: %v", ErrScript, err)
				}
			}
			st.Buttons, st.DX, st.DY = byte(v[0]), int8(v[1]), int8(v[2])
			steps = append(steps, st)

		case "wait":
			a, err := arg()
			if err != nil {
				return nil, err
			}
			d, err := time.ParseDuration(a)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("%w: wait %q", ErrScript, a)
			}
			steps = append(steps, Step{Op: OpWait, Wait: d})

		case "detach":
			steps = append(steps, Step{Op: OpDetach})

		case "attach":
			st := Step{Op: OpAttach}
			if i+1 < len(words) && words[i+1] == "low" {
				st.LowSpeed = true
				i++
			}
			steps = append(steps, st)

		default:
			return nil, fmt.Errorf("%w: unknown action %q", ErrScript, w)
		}
	}
	return steps, nil
}

func isKeyword(w string) bool {
	switch w {
	case "type", "press", "release", "move", "wait", "detach", "attach":
		return true
	}
	return false
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScript, err)
	}
	return byte(v), nil
}

// unescape turns the two character sequences \n and \t into control
// characters. They survive shell splitting only inside single quotes.
func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				out = append(out, '\n')
				i++
				continue
			case 't':
				out = append(out, '\t')
				i++
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Apply performs the input actions of st on fn. Wait, Detach and Attach
// are left to the caller, which owns the bus. It reports whether st was
// handled.
func (st Step) Apply(fn Function) bool {
	switch st.Op {
	case OpType:
		if k, ok := fn.(*Keyboard); ok {
			k.Type(st.Text)
			return true
		}
	case OpPress:
		if k, ok := fn.(*Keyboard); ok {
			k.Press(st.Mod, st.Keys...)
			return true
		}
	case OpRelease:
		if k, ok := fn.(*Keyboard); ok {
			k.ReleaseAll()
			return true
		}
	case OpMove:
		if m, ok := fn.(*Mouse); ok {
			m.Move(st.Buttons, st.DX, st.DY)
			return true
		}
	}
	return false
}
