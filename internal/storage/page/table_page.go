package page

import (
	"errors"

	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/pkg/bx"
)

// Header offsets
const (
	offFlags  = 0
	offPageID = 2
	offLower  = 6
	offUpper  = 8
	offNext   = 10

	tableHeaderSize = 14

	// SlotSize is offset(2) + length(2) + flags(2).
	SlotSize = 6
)

// Slot flags
const (
	SlotFlagNormal  uint16 = 0
	SlotFlagDeleted uint16 = 1 << 0
	SlotFlagDead    uint16 = 1 << 1
)

var (
	ErrTupleTooLarge = errors.New("page: tuple too large for inline")
	ErrNoSpace       = errors.New("page: not enough free space")
	ErrBadSlot       = errors.New("page: invalid slot")
	ErrTupleDeleted  = errors.New("page: tuple is deleted")
	ErrCorruption    = errors.New("page: corrupt slot or tuple bounds")
)

// +------------------+ 0
// | PageHeaderData   |
// | LinePointers[]   | <-- pd_lower
// +------------------+
// |                  |
// |   Free space     |
// |                  |
// +------------------+ <-- pd_upper
// |  Tuple Data      |
// |  (grows down)    |
// +------------------+ PageSize
//
// TablePage is the slotted-row view used by the heap. A row is first marked
// deleted (undoable) and only later physically deleted at commit.
type TablePage struct {
	Page *Page
}

type slot struct {
	Offset uint16
	Length uint16
	Flags  uint16
}

// Reset initializes the header for an empty table page.
func (tp TablePage) Reset(pageID storage.PageID) {
	tp.Page.Zero()
	b := tp.Page.Data()
	bx.PutU16At(b, offFlags, 0)
	bx.PutU32At(b, offPageID, uint32(pageID))
	bx.PutU16At(b, offLower, tableHeaderSize)
	bx.PutU16At(b, offUpper, storage.PageSize)
	bx.PutI32At(b, offNext, int32(storage.InvalidPageID))
}

func (tp TablePage) lower() uint16     { return bx.U16At(tp.Page.Data(), offLower) }
func (tp TablePage) upper() uint16     { return bx.U16At(tp.Page.Data(), offUpper) }
func (tp TablePage) setLower(v uint16) { bx.PutU16At(tp.Page.Data(), offLower, v) }
func (tp TablePage) setUpper(v uint16) { bx.PutU16At(tp.Page.Data(), offUpper, v) }

// PageID returns the id stamped into the page header.
func (tp TablePage) PageID() storage.PageID {
	return storage.PageID(bx.U32At(tp.Page.Data(), offPageID))
}

// NextPageID links the heap pages into a singly linked chain.
func (tp TablePage) NextPageID() storage.PageID {
	return storage.PageID(bx.I32At(tp.Page.Data(), offNext))
}

func (tp TablePage) SetNextPageID(id storage.PageID) {
	bx.PutI32At(tp.Page.Data(), offNext, int32(id))
}

// IsUninitialized reports a page of all zeroes (never Reset).
func (tp TablePage) IsUninitialized() bool {
	return tp.lower() == 0 && tp.upper() == 0
}

func (tp TablePage) FreeSpace() int {
	return int(tp.upper() - tp.lower())
}

func (tp TablePage) NumSlots() int {
	return int(tp.lower()-tableHeaderSize) / SlotSize
}

func (tp TablePage) slotOff(idx int) int {
	return tableHeaderSize + idx*SlotSize
}

func (tp TablePage) getSlot(i int) (slot, error) {
	if i < 0 || i >= tp.NumSlots() {
		return slot{}, ErrBadSlot
	}
	b := tp.Page.Data()
	o := tp.slotOff(i)
	return slot{
		Offset: bx.U16At(b, o+0),
		Length: bx.U16At(b, o+2),
		Flags:  bx.U16At(b, o+4),
	}, nil
}

func (tp TablePage) putSlot(idx int, s slot) error {
	if idx < 0 || idx > tp.NumSlots() {
		// allow writing next slot only via append
		return ErrBadSlot
	}
	b := tp.Page.Data()
	o := tp.slotOff(idx)
	if o+SlotSize > len(b) {
		return ErrCorruption
	}
	bx.PutU16At(b, o+0, s.Offset)
	bx.PutU16At(b, o+2, s.Length)
	bx.PutU16At(b, o+4, s.Flags)
	return nil
}

// InsertTuple appends a row and returns its slot index.
func (tp TablePage) InsertTuple(tup []byte) (int, error) {
	maxInline := storage.PageSize - tableHeaderSize - SlotSize
	if len(tup) > maxInline {
		return -1, ErrTupleTooLarge
	}
	need := len(tup) + SlotSize
	if tp.FreeSpace() < need {
		return -1, ErrNoSpace
	}

	newUpper := tp.upper() - uint16(len(tup))
	copy(tp.Page.Data()[newUpper:], tup)

	idx := tp.NumSlots()
	if err := tp.putSlot(idx, slot{Offset: newUpper, Length: uint16(len(tup)), Flags: SlotFlagNormal}); err != nil {
		return -1, err
	}
	tp.setLower(tp.lower() + SlotSize)
	tp.setUpper(newUpper)
	return idx, nil
}

// ReadTuple returns the row bytes for a live slot.
func (tp TablePage) ReadTuple(i int) ([]byte, error) {
	s, err := tp.getSlot(i)
	if err != nil {
		return nil, err
	}
	if s.Flags&(SlotFlagDeleted|SlotFlagDead) != 0 {
		return nil, ErrTupleDeleted
	}
	b := tp.Page.Data()
	if int(s.Offset)+int(s.Length) > len(b) {
		return nil, ErrCorruption
	}
	out := make([]byte, s.Length)
	copy(out, b[s.Offset:int(s.Offset)+int(s.Length)])
	return out, nil
}

// MarkDelete flags the slot as deleted without reclaiming its bytes, so the
// delete can still be rolled back.
func (tp TablePage) MarkDelete(i int) error {
	s, err := tp.getSlot(i)
	if err != nil {
		return err
	}
	if s.Flags&(SlotFlagDeleted|SlotFlagDead) != 0 {
		return ErrTupleDeleted
	}
	s.Flags |= SlotFlagDeleted
	return tp.putSlot(i, s)
}

// RollbackDelete clears a previous MarkDelete.
func (tp TablePage) RollbackDelete(i int) error {
	s, err := tp.getSlot(i)
	if err != nil {
		return err
	}
	s.Flags &^= SlotFlagDeleted
	return tp.putSlot(i, s)
}

// ApplyDelete retires the slot for good. The slot entry stays so later slot
// indexes keep their meaning; the row bytes become unreachable.
func (tp TablePage) ApplyDelete(i int) error {
	s, err := tp.getSlot(i)
	if err != nil {
		return err
	}
	s.Flags = SlotFlagDead
	s.Length = 0
	return tp.putSlot(i, s)
}

// UpdateTuple overwrites a live row in place. Rows that grow past their old
// footprint need a delete+insert instead.
func (tp TablePage) UpdateTuple(i int, tup []byte) error {
	s, err := tp.getSlot(i)
	if err != nil {
		return err
	}
	if s.Flags&(SlotFlagDeleted|SlotFlagDead) != 0 {
		return ErrTupleDeleted
	}
	if len(tup) > int(s.Length) {
		return ErrNoSpace
	}
	b := tp.Page.Data()
	copy(b[s.Offset:], tup)
	s.Length = uint16(len(tup))
	return tp.putSlot(i, s)
}

// IsLive reports whether the slot holds a visible row.
func (tp TablePage) IsLive(i int) bool {
	s, err := tp.getSlot(i)
	if err != nil {
		return false
	}
	return s.Flags&(SlotFlagDeleted|SlotFlagDead) == 0
}
