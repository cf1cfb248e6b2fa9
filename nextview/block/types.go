// Package block decodes a validated Nextview block byte image (the
// output of nextview/stream or nextview/aifrag) into one typed,
// self-contained record per clause 9-10 of ETS 300 707. Each record
// holds its variable-length string data as ordinary Go string fields
// decoded from the block's text section; the record and its strings
// are separate allocations, not one contiguous block with string
// offsets.
package block

// Netwop describes one network entry carried in the AI block.
type Netwop struct {
	CNI           uint16
	LTO           int16 // local time offset, minutes, signed
	DayCount      uint8 // number of distinct broadcast days covered
	Name          string
	StartNo       uint16 // first stream-1 PI block_no for this network
	StopNo        uint16
	StartNoSwo    uint16 // stream-2 ("swo", schedule-without-overrun) range
	StopNoSwo     uint16
	AlphabetGroup uint8 // index into the alphabet table this network's strings use
}

// AI is the Application Information block: provider identity, the two
// independent per-stream version counters, and the network table every
// other record's netwop index is validated against.
type AI struct {
	CNI          uint16
	Version1     uint8 // version counter for stream 1 (PI etc.)
	Version2     uint8 // version counter for stream 2 (swo PI)
	ServiceName  string
	NetwopCount  uint8
	Netwops      []Netwop
	DefaultAlpha uint8 // alphabet used when a netwop doesn't name one
}

// BI is the Bundle Inventory block: the application ID identifying
// which EPG bundle/provider this broadcast belongs to.
type BI struct {
	AppID uint8
}

// PI is one Programme Information record.
type PI struct {
	NetwopIndex     uint8
	BlockNo         uint16
	StartTime       int64 // unix seconds
	StopTime        int64
	PIL             uint32 // VPS/PDC Programme Identification Label
	FeatureFlags    uint32
	ParentalRating  uint8 // 0 = none, else age/8 per ETS 300 707
	EditorialRating uint8 // 0 = none, else 1..7
	Themes          []uint8
	Sortcrits       []uint8
	Descriptors     []uint8 // language/subtitle descriptor IDs referenced
	Title           string
	ShortInfo       string
	LongInfo        string
	Stream          uint8 // 1 or 2 (swo)
	Version         uint8 // version byte from the PI block's own header (Ctrl[5]), set by Decode
}

// OI is a menu/overview structure addressed by block_no.
type OI struct {
	BlockNo uint16
	Text    string
}

// NI is a navigation-menu structure addressed by block_no, carrying a
// stack of attribute opcodes resolved by epgfilter/ni_stack.go.
type NI struct {
	BlockNo   uint16
	Opcodes   []byte
	MenuText  string
}

// MI is a message/magazine structure addressed by block_no.
type MI struct {
	BlockNo uint16
	Text    string
}

// LI is a per-network language descriptor array. NetwopIndex 0x8000
// (encoded here as ThisNetwork == true) means "the network the LI
// block itself arrived on".
type LI struct {
	BlockNo     uint16
	NetwopIndex uint16
	ThisNetwork bool
	Descriptors []LangDescriptor
}

// LangDescriptor names one selectable audio/subtitle language.
type LangDescriptor struct {
	ID   uint8
	Name string
}

// TI is a per-network subtitle descriptor array, structurally
// analogous to LI.
type TI struct {
	BlockNo     uint16
	NetwopIndex uint16
	ThisNetwork bool
	Descriptors []LangDescriptor
}
