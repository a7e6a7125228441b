// Package record decodes the fixed-size binary records kept in the
// distribution folder and served as request payloads.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

// Size is the exact byte length of a stored record.
const Size = 0x158

// Field offsets. All integers are little-endian.
const (
	offSpecies     = 0x08
	offHeldItem    = 0x0A
	offTrainerID   = 0x0C
	offLevel       = 0x14
	offShiny       = 0x15
	offRibbons     = 0x16
	offTracker     = 0x18
	offNickname    = 0x58
	offTrainerName = 0xF8

	nameBytes = 24 // 12 UTF-16 code units
)

// Ribbon bits. Records carrying any of these are event gifts and may not be
// sent to anonymous partners.
const (
	RibbonClassic uint8 = 1 << iota
	RibbonPremier
	RibbonBirthday
)

const restrictedRibbons = RibbonClassic | RibbonPremier | RibbonBirthday

var (
	// ErrSize is returned when the input is not exactly Size bytes long.
	ErrSize = errors.New("record: wrong size")

	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// Record is a decoded payload record.
type Record struct {
	Species     uint16
	HeldItem    uint16
	TrainerID   uint32
	Level       uint8
	Shiny       bool
	Ribbons     uint8
	Tracker     uint64
	Nickname    string
	TrainerName string
}

// Decode parses a raw record.
func Decode(data []byte) (*Record, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSize, len(data), Size)
	}
	nick, err := decodeName(data[offNickname : offNickname+nameBytes])
	if err != nil {
		return nil, fmt.Errorf("record: nickname: %w", err)
	}
	ot, err := decodeName(data[offTrainerName : offTrainerName+nameBytes])
	if err != nil {
		return nil, fmt.Errorf("record: trainer name: %w", err)
	}
	return &Record{
		Species:     binary.LittleEndian.Uint16(data[offSpecies:]),
		HeldItem:    binary.LittleEndian.Uint16(data[offHeldItem:]),
		TrainerID:   binary.LittleEndian.Uint32(data[offTrainerID:]),
		Level:       data[offLevel],
		Shiny:       data[offShiny] != 0,
		Ribbons:     data[offRibbons],
		Tracker:     binary.LittleEndian.Uint64(data[offTracker:]),
		Nickname:    nick,
		TrainerName: ot,
	}, nil
}

// Encode serialises the record into a Size-byte buffer. Names longer than
// the field are truncated.
func (r *Record) Encode() ([]byte, error) {
	data := make([]byte, Size)
	binary.LittleEndian.PutUint16(data[offSpecies:], r.Species)
	binary.LittleEndian.PutUint16(data[offHeldItem:], r.HeldItem)
	binary.LittleEndian.PutUint32(data[offTrainerID:], r.TrainerID)
	data[offLevel] = r.Level
	if r.Shiny {
		data[offShiny] = 1
	}
	data[offRibbons] = r.Ribbons
	binary.LittleEndian.PutUint64(data[offTracker:], r.Tracker)
	if err := encodeName(data[offNickname:offNickname+nameBytes], r.Nickname); err != nil {
		return nil, fmt.Errorf("record: nickname: %w", err)
	}
	if err := encodeName(data[offTrainerName:offTrainerName+nameBytes], r.TrainerName); err != nil {
		return nil, fmt.Errorf("record: trainer name: %w", err)
	}
	return data, nil
}

// IsEmpty reports whether the record is an empty slot.
func (r *Record) IsEmpty() bool {
	return r == nil || r.Species == 0
}

// Label is the nickname, or the species number when there is none.
func (r *Record) Label() string {
	if r.IsEmpty() {
		return ""
	}
	name := r.Nickname
	if name == "" {
		name = fmt.Sprintf("#%03d", r.Species)
	}
	if r.Shiny {
		return "★ " + name
	}
	return name
}

// AnonymousAllowed reports whether the record may go to an anonymous
// partner.
func (r *Record) AnonymousAllowed() bool {
	return r.Ribbons&restrictedRibbons == 0
}

// Fields exposes the record as a flat map, used by legality expressions.
func (r *Record) Fields() map[string]any {
	return map[string]any{
		"species":     int64(r.Species),
		"heldItem":    int64(r.HeldItem),
		"trainerID":   int64(r.TrainerID),
		"level":       int64(r.Level),
		"shiny":       r.Shiny,
		"ribbons":     int64(r.Ribbons),
		"tracker":     fmt.Sprintf("%016x", r.Tracker),
		"nickname":    r.Nickname,
		"trainerName": r.TrainerName,
	}
}

// decodeName reads a zero-terminated UTF-16LE string.
func decodeName(field []byte) (string, error) {
	end := len(field)
	for i := 0; i+1 < len(field); i += 2 {
		if field[i] == 0 && field[i+1] == 0 {
			end = i
			break
		}
	}
	out, err := utf16le.NewDecoder().Bytes(field[:end])
	if err != nil {
		return "", err
	}
	return norm.NFC.String(string(bytes.ToValidUTF8(out, nil))), nil
}

// encodeName writes s as UTF-16LE into field, zero padded.
func encodeName(field []byte, s string) error {
	enc, err := utf16le.NewEncoder().Bytes([]byte(norm.NFC.String(s)))
	if err != nil {
		return err
	}
	if len(enc) > len(field) {
		enc = enc[:len(field)]
	}
	copy(field, enc)
	return nil
}
