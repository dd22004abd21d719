package vaporlight

// Encoder for the downstream bus protocol spoken to the LED boards and to
// the emulator.  A command starts with the 0x55 mark, then the module
// address, then raw 8 bit channel values.  0x55 inside the payload is
// escaped as 0x54 0x01 and a literal 0x54 as 0x54 0x00.  A command
// addressed to 0xfe is the broadcast strobe that makes all boards latch
// their channel values.

const (
	busStartMark  byte = 0x55
	busEscapeMark byte = 0x54

	busEscapedEscape byte = 0x00
	busEscapedStart  byte = 0x01

	// busStrobeAddr is the broadcast strobe pseudo address
	busStrobeAddr byte = 0xfe
)

// appendBusEscaped appends b with the escaping the bus wire format
// requires
func appendBusEscaped(buf []byte, b byte) []byte {
	switch b {
	case busEscapeMark:
		return append(buf, busEscapeMark, busEscapedEscape)
	case busStartMark:
		return append(buf, busEscapeMark, busEscapedStart)
	}
	return append(buf, b)
}

// BusSetChannels encodes one set-channels command for a module, the
// channel values latch on the next bus strobe
func BusSetChannels(module uint8, channels []uint8) (buf []byte) {
	buf = make([]byte, 0, 2+2*len(channels))
	buf = append(buf, busStartMark)
	buf = appendBusEscaped(buf, module)
	for _, value := range channels {
		buf = appendBusEscaped(buf, value)
	}
	return buf
}

// BusStrobe encodes the broadcast strobe command
func BusStrobe() (buf []byte) {
	return []byte{busStartMark, busStrobeAddr}
}

// ExpandFrame flattens a composited frame into per module channel arrays
// using the configured topology.  Every module array is fully populated so
// boards always see a complete set of values before the strobe.
func ExpandFrame(topo *Topology, frame Frame) (modules map[uint8][]uint8) {
	modules = map[uint8][]uint8{}
	for module, size := range topo.Modules() {
		modules[module] = make([]uint8, size)
	}

	for led, color := range frame.Colors {
		if led >= topo.Size() {
			break
		}
		channels := color.Channels8()
		for i, coord := range topo.Coords(led) {
			if i >= len(channels) {
				break
			}
			modules[coord.Module][coord.Channel] = channels[i]
		}
	}
	return modules
}
