package lobby

// Connection-quality grades, 1 (best) through 6 (worst), as reported by a
// client in its 0x03/0x0C payload.
const (
	QualityLAN    byte = 1
	QualityExcellent byte = 2
	QualityGood   byte = 3
	QualityAverage byte = 4
	QualityLow    byte = 5
	QualityBad    byte = 6
)

// pingBracket is one row of the published ping->delay table: pings below
// UpToMS (inclusive) at this grade map to Delay frames. The table is
// informative, not part of the core (section 9, Open Questions): the
// Frame Synchronizer and friends only ever see the resulting int.
type pingBracket struct {
	UpToMS uint32
	Delay  int
}

var delayTable = map[byte][]pingBracket{
	QualityLAN: {
		{UpToMS: 10, Delay: 1},
		{UpToMS: 40, Delay: 2},
		{UpToMS: 1 << 31, Delay: 3},
	},
	QualityExcellent: {
		{UpToMS: 40, Delay: 2},
		{UpToMS: 80, Delay: 3},
		{UpToMS: 1 << 31, Delay: 4},
	},
	QualityGood: {
		{UpToMS: 80, Delay: 3},
		{UpToMS: 120, Delay: 4},
		{UpToMS: 1 << 31, Delay: 5},
	},
	QualityAverage: {
		{UpToMS: 120, Delay: 4},
		{UpToMS: 180, Delay: 6},
		{UpToMS: 1 << 31, Delay: 8},
	},
	QualityLow: {
		{UpToMS: 180, Delay: 6},
		{UpToMS: 260, Delay: 9},
		{UpToMS: 1 << 31, Delay: 12},
	},
	QualityBad: {
		{UpToMS: 260, Delay: 9},
		{UpToMS: 400, Delay: 14},
		{UpToMS: 1 << 31, Delay: 20},
	},
}

// DelayForPing maps a connection-quality grade and a ping in milliseconds
// to a frame delay d_p >= 1. The server measures no ping itself: the
// lobby's own callers pass 0.
func DelayForPing(quality byte, pingMS uint32) int {
	brackets, ok := delayTable[quality]
	if !ok {
		brackets = delayTable[QualityAverage]
	}
	for _, b := range brackets {
		if pingMS <= b.UpToMS {
			return b.Delay
		}
	}
	return brackets[len(brackets)-1].Delay
}
