package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nxtvepg/epgrecv/nextview/wire"
)

// ErrShortCtrl is returned when a block's control section is too short
// for its declared type to be decoded safely.
var ErrShortCtrl = errors.New("block: control section too short for type")

// ErrBadOffset is returned when a string offset decoded from the
// control section points outside the block's text section.
var ErrBadOffset = errors.New("block: string offset outside text section")

// commonHeaderLen is the length, in decoded bytes, of the block header
// fields common to every non-BI Nextview block (app_id, block_len low
// byte, checksum, ctrl_len/type, version1, version2) before the
// type-specific control payload begins; see nextview/stream's
// checkEpgBlock for how these first bytes are populated.
const commonHeaderLen = 7

// Decode dispatches a validated wire.Block to its type-specific
// decoder and returns the typed record. alpha selects the string
// table for text fields (see alphabet.go); callers pass the alphabet
// named for the network the block concerns, falling back to the AI's
// default for AI/BI themselves.
func Decode(blk *wire.Block, alpha Alphabet) (interface{}, error) {
	if blk.Type == wire.TypeBI {
		return BI{AppID: blk.AppID}, nil
	}
	if len(blk.Ctrl) < commonHeaderLen {
		return nil, fmt.Errorf("%w: type %s has %d ctrl bytes", ErrShortCtrl, wire.TypeName(blk.Type), len(blk.Ctrl))
	}
	payload := blk.Ctrl[commonHeaderLen:]
	version := blk.Ctrl[5]

	switch blk.Type {
	case wire.TypeAI:
		return decodeAI(payload, blk.Text)
	case wire.TypePI:
		pi, err := decodePI(payload, blk.Text, alpha)
		if err == nil {
			pi.Version = version
		}
		return pi, err
	case wire.TypeOI:
		return decodeOI(payload, blk.Text, alpha)
	case wire.TypeNI:
		return decodeNI(payload, blk.Text, alpha)
	case wire.TypeMI:
		return decodeMI(payload, blk.Text, alpha)
	case wire.TypeLI:
		return decodeLI(payload, blk.Text, alpha)
	case wire.TypeTI:
		return decodeTI(payload, blk.Text, alpha)
	default:
		return nil, fmt.Errorf("block: unsupported type %s", wire.TypeName(blk.Type))
	}
}

// takeString reads a (length, offset) pair from payload at pos and
// returns the decoded string. The pair always occupies 3 control bytes
// (1 length byte + 2 offset bytes), which callers skip themselves.
func takeString(payload, text []byte, pos int, alpha Alphabet) (string, error) {
	if pos+3 > len(payload) {
		return "", ErrShortCtrl
	}
	length := int(payload[pos])
	offset := int(binary.BigEndian.Uint16(payload[pos+1 : pos+3]))
	if length == 0 {
		return "", nil
	}
	if offset+length > len(text) {
		return "", ErrBadOffset
	}
	return DecodeString(text[offset:offset+length], alpha), nil
}

// decodeAI reads the network table: a netwop count byte, a default
// alphabet byte, two version-shadow bytes, then netwopCount fixed
// 14-byte network entries (cni:2, lto:2, dayCount:1, startNo:2,
// stopNo:2, startNoSwo:2, stopNoSwo:2, alphabet:1), each followed by
// its name's (length, offset) pair, and finally the service name's
// (length, offset) pair.
func decodeAI(payload, text []byte) (AI, error) {
	if len(payload) < 4 {
		return AI{}, ErrShortCtrl
	}
	netwopCount := payload[0]
	defaultAlpha := payload[1]
	ver1 := payload[2]
	ver2 := payload[3]

	const entryLen = 14
	pos := 4
	netwops := make([]Netwop, 0, netwopCount)
	for i := uint8(0); i < netwopCount; i++ {
		if pos+entryLen > len(payload) {
			return AI{}, fmt.Errorf("%w: ai netwop %d", ErrShortCtrl, i)
		}
		n := Netwop{
			CNI:           binary.BigEndian.Uint16(payload[pos : pos+2]),
			LTO:           int16(binary.BigEndian.Uint16(payload[pos+2 : pos+4])),
			DayCount:      payload[pos+4],
			StartNo:       binary.BigEndian.Uint16(payload[pos+5 : pos+7]),
			StopNo:        binary.BigEndian.Uint16(payload[pos+7 : pos+9]),
			StartNoSwo:    binary.BigEndian.Uint16(payload[pos+9 : pos+11]),
			StopNoSwo:     binary.BigEndian.Uint16(payload[pos+11 : pos+13]),
			AlphabetGroup: payload[pos+13],
		}
		nameLen := 0
		nameOff := 0
		if pos+entryLen+3 <= len(payload) {
			nameLen = int(payload[pos+entryLen])
			nameOff = int(binary.BigEndian.Uint16(payload[pos+entryLen+1 : pos+entryLen+3]))
		}
		if nameLen > 0 && nameOff+nameLen <= len(text) {
			n.Name = DecodeString(text[nameOff:nameOff+nameLen], Alphabet(n.AlphabetGroup))
		}
		netwops = append(netwops, n)
		pos += entryLen + 3
	}

	svcName, err := takeString(payload, text, pos, Alphabet(defaultAlpha))
	if err != nil {
		svcName = ""
	}

	return AI{
		Version1:     ver1,
		Version2:     ver2,
		ServiceName:  svcName,
		NetwopCount:  netwopCount,
		Netwops:      netwops,
		DefaultAlpha: defaultAlpha,
	}, nil
}

// decodePI reads the fixed-length PI fields followed by three
// (length, offset) string references (title, short info, long info).
func decodePI(payload, text []byte, alpha Alphabet) (PI, error) {
	const fixedLen = 20
	if len(payload) < fixedLen {
		return PI{}, ErrShortCtrl
	}
	pi := PI{
		NetwopIndex:     payload[0],
		BlockNo:         binary.BigEndian.Uint16(payload[1:3]),
		StartTime:       int64(binary.BigEndian.Uint32(payload[3:7])),
		StopTime:        int64(binary.BigEndian.Uint32(payload[7:11])),
		PIL:             binary.BigEndian.Uint32(payload[11:15]) & 0x000fffff,
		FeatureFlags:    uint32(payload[15]) | uint32(payload[16])<<8,
		ParentalRating:  payload[17],
		EditorialRating: payload[18],
		Stream:          payload[19] & 1,
	}

	pos := fixedLen
	if pos < len(payload) {
		themeCount := int(payload[pos])
		pos++
		if pos+themeCount <= len(payload) {
			pi.Themes = append([]byte(nil), payload[pos:pos+themeCount]...)
			pos += themeCount
		}
	}
	if pos < len(payload) {
		sortCount := int(payload[pos])
		pos++
		if pos+sortCount <= len(payload) {
			pi.Sortcrits = append([]byte(nil), payload[pos:pos+sortCount]...)
			pos += sortCount
		}
	}
	if pos < len(payload) {
		descCount := int(payload[pos])
		pos++
		if pos+descCount <= len(payload) {
			pi.Descriptors = append([]byte(nil), payload[pos:pos+descCount]...)
			pos += descCount
		}
	}

	var err error
	if pi.Title, err = takeString(payload, text, pos, alpha); err == nil {
		pos += 3
	}
	if pi.ShortInfo, err = takeString(payload, text, pos, alpha); err == nil {
		pos += 3
	}
	pi.LongInfo, _ = takeString(payload, text, pos, alpha)

	return pi, nil
}

func decodeOI(payload, text []byte, alpha Alphabet) (OI, error) {
	if len(payload) < 2 {
		return OI{}, ErrShortCtrl
	}
	blockNo := binary.BigEndian.Uint16(payload[0:2])
	txt, _ := takeString(payload, text, 2, alpha)
	return OI{BlockNo: blockNo, Text: txt}, nil
}

func decodeNI(payload, text []byte, alpha Alphabet) (NI, error) {
	if len(payload) < 3 {
		return NI{}, ErrShortCtrl
	}
	blockNo := binary.BigEndian.Uint16(payload[0:2])
	opCount := int(payload[2])
	pos := 3
	var ops []byte
	if pos+opCount <= len(payload) {
		ops = append([]byte(nil), payload[pos:pos+opCount]...)
		pos += opCount
	}
	txt, _ := takeString(payload, text, pos, alpha)
	return NI{BlockNo: blockNo, Opcodes: ops, MenuText: txt}, nil
}

func decodeMI(payload, text []byte, alpha Alphabet) (MI, error) {
	if len(payload) < 2 {
		return MI{}, ErrShortCtrl
	}
	blockNo := binary.BigEndian.Uint16(payload[0:2])
	txt, _ := takeString(payload, text, 2, alpha)
	return MI{BlockNo: blockNo, Text: txt}, nil
}

func decodeLangArray(payload, text []byte, alpha Alphabet) (blockNo, netwop uint16, thisNetwork bool, descs []LangDescriptor, err error) {
	if len(payload) < 4 {
		return 0, 0, false, nil, ErrShortCtrl
	}
	blockNo = binary.BigEndian.Uint16(payload[0:2])
	netwop = binary.BigEndian.Uint16(payload[2:4])
	thisNetwork = netwop == 0x8000
	count := 0
	pos := 4
	if pos < len(payload) {
		count = int(payload[pos])
		pos++
	}
	descs = make([]LangDescriptor, 0, count)
	for i := 0; i < count; i++ {
		if pos+3 > len(payload) {
			break
		}
		id := payload[pos]
		name, serr := takeString(payload, text, pos+1, alpha)
		if serr != nil {
			name = ""
		}
		descs = append(descs, LangDescriptor{ID: id, Name: name})
		pos += 4
	}
	return blockNo, netwop, thisNetwork, descs, nil
}

func decodeLI(payload, text []byte, alpha Alphabet) (LI, error) {
	blockNo, netwop, thisNet, descs, err := decodeLangArray(payload, text, alpha)
	if err != nil {
		return LI{}, err
	}
	return LI{BlockNo: blockNo, NetwopIndex: netwop, ThisNetwork: thisNet, Descriptors: descs}, nil
}

func decodeTI(payload, text []byte, alpha Alphabet) (TI, error) {
	blockNo, netwop, thisNet, descs, err := decodeLangArray(payload, text, alpha)
	if err != nil {
		return TI{}, err
	}
	return TI{BlockNo: blockNo, NetwopIndex: netwop, ThisNetwork: thisNet, Descriptors: descs}, nil
}
