// Package xatom implements the cached identifier table and the Kind tag
// used in place of per-callsite filename-extension conditionals.
package xatom

import (
	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/xconn"
)

// Interner is the minimal surface xatom needs from xconn.Conn, kept
// narrow so the table can be unit tested against a fake.
type Interner interface {
	InternAtom(name string) (xconn.Atom, error)
}

// Table holds every atom the daemon cares about, interned once after
// connecting; it is immutable after Init returns.
type Table struct {
	Clipboard  xconn.Atom
	Utf8String xconn.Atom
	Targets    xconn.Atom
	Timestamp  xconn.Atom
	Incr       xconn.Atom
	PNG        xconn.Atom
	JPEG       xconn.Atom
	BMP        xconn.Atom
	Property   xconn.Atom // private transfer property
	LockSel    xconn.Atom // private single-instance-lock selection
	Wakeup     xconn.Atom // private client-message type for shutdown wakeup

	mediaOrder []xconn.Atom // PNG, JPEG, BMP, UTF8_STRING: preference order for TARGETS negotiation
	kindOf     map[xconn.Atom]Kind
}

// Init interns every well-known atom exactly once. propertyName,
// lockAtomName and wakeupName are the private atom names supplied by the
// caller.
func Init(c Interner, propertyName, lockAtomName, wakeupName string) (*Table, error) {
	names := map[string]*xconn.Atom{}
	t := &Table{}
	names["CLIPBOARD"] = &t.Clipboard
	names["UTF8_STRING"] = &t.Utf8String
	names["TARGETS"] = &t.Targets
	names["TIMESTAMP"] = &t.Timestamp
	names["INCR"] = &t.Incr
	names["image/png"] = &t.PNG
	names["image/jpeg"] = &t.JPEG
	names["image/bmp"] = &t.BMP
	names[propertyName] = &t.Property
	names[lockAtomName] = &t.LockSel
	names[wakeupName] = &t.Wakeup

	for name, dst := range names {
		a, err := c.InternAtom(name)
		if err != nil {
			return nil, cmn.Wrapf(err, "xatom: interning %q", name)
		}
		*dst = a
	}

	t.mediaOrder = []xconn.Atom{t.PNG, t.JPEG, t.BMP, t.Utf8String}
	t.kindOf = map[xconn.Atom]Kind{
		t.PNG:        KindImagePNG,
		t.JPEG:       KindImageJPEG,
		t.BMP:        KindImageBMP,
		t.Utf8String: KindTextUTF8,
	}
	return t, nil
}

// IsKnownMedia reports whether a is one of the media atoms this daemon
// can store.
func (t *Table) IsKnownMedia(a xconn.Atom) bool {
	_, ok := t.kindOf[a]
	return ok
}

// KindFor maps a media atom back to its Kind.
func (t *Table) KindFor(a xconn.Atom) (Kind, bool) {
	k, ok := t.kindOf[a]
	return k, ok
}

// FormatFor maps a HistoryItem Kind to its wire atom.
func (t *Table) FormatFor(k Kind) xconn.Atom {
	switch k {
	case KindImagePNG:
		return t.PNG
	case KindImageJPEG:
		return t.JPEG
	case KindImageBMP:
		return t.BMP
	case KindTextUTF8:
		return t.Utf8String
	default:
		return xconn.AtomNone
	}
}

// PickBest scans a TARGETS reply (a raw list of atoms) and returns the
// best target in the preference order PNG > JPEG > BMP > UTF-8, skipping
// atoms this daemon doesn't know.
func (t *Table) PickBest(offered []xconn.Atom) (best xconn.Atom, ok bool) {
	offeredSet := make(map[xconn.Atom]bool, len(offered))
	for _, a := range offered {
		offeredSet[a] = true
	}
	for _, candidate := range t.mediaOrder {
		if offeredSet[candidate] {
			return candidate, true
		}
	}
	return xconn.AtomNone, false
}

// ParseAtoms32 decodes a TARGETS reply's raw 8-or-32-bit property value
// into a slice of atoms. xproto delivers ATOM-typed properties as 4-byte
// little/host-endian words.
func ParseAtoms32(data []byte) []xconn.Atom {
	n := len(data) / 4
	out := make([]xconn.Atom, 0, n)
	for i := 0; i < n; i++ {
		v := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out = append(out, xconn.Atom(v))
	}
	return out
}

// ParseUint32 decodes a single 32-bit value, used for the INCR
// total-size announcement and TIMESTAMP replies.
func ParseUint32(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
}
