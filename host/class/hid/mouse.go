package hid

// MouseInfo is a decoded boot mouse report.
type MouseInfo struct {
	Buttons uint8
	DX      int8
	DY      int8
}

// Left reports whether the left button is held.
func (m *MouseInfo) Left() bool { return m.Buttons&MouseButtonLeft != 0 }

// Right reports whether the right button is held.
func (m *MouseInfo) Right() bool { return m.Buttons&MouseButtonRight != 0 }

// Middle reports whether the middle button is held.
func (m *MouseInfo) Middle() bool { return m.Buttons&MouseButtonMiddle != 0 }

// MouseHandler receives mouse events from a MouseParser.
type MouseHandler interface {
	OnMouseMove(mi *MouseInfo)
	OnLeftButtonUp(mi *MouseInfo)
	OnLeftButtonDown(mi *MouseInfo)
	OnRightButtonUp(mi *MouseInfo)
	OnRightButtonDown(mi *MouseInfo)
	OnMiddleButtonUp(mi *MouseInfo)
	OnMiddleButtonDown(mi *MouseInfo)
}

// MouseParser turns boot mouse reports into button edges and movement.
type MouseParser struct {
	handler MouseHandler
	prev    MouseInfo
}

// Ensure MouseParser implements ReportParser.
var _ ReportParser = (*MouseParser)(nil)

// NewMouseParser returns a parser reporting to h.
func NewMouseParser(h MouseHandler) *MouseParser {
	return &MouseParser{handler: h}
}

// Parse implements ReportParser. Reports shorter than three bytes are
// ignored.
func (p *MouseParser) Parse(d *HID, isReportID bool, buf []byte) {
	if isReportID && len(buf) > 0 {
		buf = buf[1:]
	}
	if len(buf) < 3 || p.handler == nil {
		return
	}

	mi := MouseInfo{
		Buttons: buf[0],
		DX:      int8(buf[1]),
		DY:      int8(buf[2]),
	}

	edges := []struct {
		mask     uint8
		down, up func(*MouseInfo)
	}{
		{MouseButtonLeft, p.handler.OnLeftButtonDown, p.handler.OnLeftButtonUp},
		{MouseButtonRight, p.handler.OnRightButtonDown, p.handler.OnRightButtonUp},
		{MouseButtonMiddle, p.handler.OnMiddleButtonDown, p.handler.OnMiddleButtonUp},
	}
	for _, e := range edges {
		was := p.prev.Buttons&e.mask != 0
		is := mi.Buttons&e.mask != 0
		switch {
		case !was && is:
			e.down(&mi)
		case was && !is:
			e.up(&mi)
		}
	}

	if mi.DX != p.prev.DX || mi.DY != p.prev.DY {
		p.handler.OnMouseMove(&mi)
	}

	p.prev = mi
}

// MouseFuncs adapts plain functions to MouseHandler. Nil fields are
// skipped.
type MouseFuncs struct {
	Move       func(mi *MouseInfo)
	LeftUp     func(mi *MouseInfo)
	LeftDown   func(mi *MouseInfo)
	RightUp    func(mi *MouseInfo)
	RightDown  func(mi *MouseInfo)
	MiddleUp   func(mi *MouseInfo)
	MiddleDown func(mi *MouseInfo)
}

// Ensure MouseFuncs implements MouseHandler.
var _ MouseHandler = MouseFuncs{}

func callMouse(fn func(*MouseInfo), mi *MouseInfo) {
	if fn != nil {
		fn(mi)
	}
}

func (f MouseFuncs) OnMouseMove(mi *MouseInfo)        { callMouse(f.Move, mi) }
func (f MouseFuncs) OnLeftButtonUp(mi *MouseInfo)     { callMouse(f.LeftUp, mi) }
func (f MouseFuncs) OnLeftButtonDown(mi *MouseInfo)   { callMouse(f.LeftDown, mi) }
func (f MouseFuncs) OnRightButtonUp(mi *MouseInfo)    { callMouse(f.RightUp, mi) }
func (f MouseFuncs) OnRightButtonDown(mi *MouseInfo)  { callMouse(f.RightDown, mi) }
func (f MouseFuncs) OnMiddleButtonUp(mi *MouseInfo)   { callMouse(f.MiddleUp, mi) }
func (f MouseFuncs) OnMiddleButtonDown(mi *MouseInfo) { callMouse(f.MiddleDown, mi) }
