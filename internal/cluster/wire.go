package cluster

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/corert/corert/internal/task"
)

// writer/reader implement a small fixed-width binary codec for message
// payloads. §1 scopes the transport itself out of this repo's concern;
// what crosses that transport still needs an unambiguous byte layout,
// so this repo defines its own minimal one rather than depending on a
// code-generated marshaler pipeline this exercise has no way to run.

type writer struct {
	buf []byte
	err error
}

func newWriter() *writer { return &writer{} }

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u64(v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); w.buf = append(w.buf, b[:]...) }
func (w *writer) uptr(v uintptr) { w.u64(uint64(v)) }
func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) bytes(v []byte) {
	w.u64(uint64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *writer) str(v string) { w.bytes([]byte(v)) }

func (w *writer) uuidVal(v uuid.UUID) { w.buf = append(w.buf, v[:]...) }

func (w *writer) cidVal(c cid.Cid) { w.bytes(c.Bytes()) }

func (w *writer) accesses(as []AccessDescriptor) {
	w.u64(uint64(len(as)))
	for _, a := range as {
		w.uptr(a.Start)
		w.uptr(a.Size)
		w.u8(uint8(a.Type))
		w.boolean(a.Weak)
		w.boolean(a.ReadSatisfied)
		w.boolean(a.WriteSatisfied)
		w.boolean(a.ConcurrentOK)
		w.boolean(a.CommutativeOK)
	}
}

type reader struct {
	buf []byte
	pos int
	err error
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("cluster: short message body, need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *reader) uptr() uintptr { return uintptr(r.u64()) }

func (r *reader) boolean() bool { return r.u8() != 0 }

func (r *reader) bytes() []byte {
	n := int(r.u64())
	if !r.need(n) {
		return nil
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v
}

func (r *reader) str() string { return string(r.bytes()) }

func (r *reader) uuidVal() uuid.UUID {
	var u uuid.UUID
	if !r.need(len(u)) {
		return u
	}
	copy(u[:], r.buf[r.pos:r.pos+len(u)])
	r.pos += len(u)
	return u
}

func (r *reader) cidVal() cid.Cid {
	b := r.bytes()
	if r.err != nil || len(b) == 0 {
		return cid.Undef
	}
	c, err := cid.Cast(b)
	if err != nil {
		r.err = err
		return cid.Undef
	}
	return c
}

func (r *reader) accesses() []AccessDescriptor {
	n := int(r.u64())
	if n < 0 || r.err != nil {
		return nil
	}
	out := make([]AccessDescriptor, n)
	for i := range out {
		out[i] = AccessDescriptor{
			Start: r.uptr(),
			Size:  r.uptr(),
			Type:  task.AccessType(r.u8()),
			Weak:  r.boolean(),

			ReadSatisfied:  r.boolean(),
			WriteSatisfied: r.boolean(),
			ConcurrentOK:   r.boolean(),
			CommutativeOK:  r.boolean(),
		}
	}
	return out
}

func encodeTaskNew(w *writer, m *TaskNewMessage) {
	w.uuidVal(m.RemoteTaskID)
	w.str(m.Label)
	w.bytes(m.Args)
	w.accesses(m.Accesses)
	w.uuidVal(m.NamespacePredecessor)
	w.cidVal(m.PayloadCID)
}

func decodeTaskNew(h header, r *reader) (*TaskNewMessage, error) {
	m := &TaskNewMessage{header: h}
	m.RemoteTaskID = r.uuidVal()
	m.Label = r.str()
	m.Args = r.bytes()
	m.Accesses = r.accesses()
	m.NamespacePredecessor = r.uuidVal()
	m.PayloadCID = r.cidVal()
	return m, r.err
}

func encodeTaskFinished(w *writer, m *TaskFinishedMessage) {
	w.uuidVal(m.RemoteTaskID)
	w.str(m.Err)
}

func decodeTaskFinished(h header, r *reader) (*TaskFinishedMessage, error) {
	m := &TaskFinishedMessage{header: h}
	m.RemoteTaskID = r.uuidVal()
	m.Err = r.str()
	return m, r.err
}

func encodeSatisfiability(w *writer, m *SatisfiabilityMessage) {
	w.uuidVal(m.RemoteTaskID)
	w.u64(uint64(m.AccessIndex))
	w.boolean(m.ReadSatisfied)
	w.boolean(m.WriteSatisfied)
	w.boolean(m.ConcurrentOK)
	w.boolean(m.CommutativeOK)
	w.boolean(m.HasLocation)
	if m.HasLocation {
		w.u64(uint64(m.Location.NodeID))
		w.str(m.Location.Label)
	}
	w.u64(m.WriteID)
}

func decodeSatisfiability(h header, r *reader) (*SatisfiabilityMessage, error) {
	m := &SatisfiabilityMessage{header: h}
	m.RemoteTaskID = r.uuidVal()
	m.AccessIndex = int(r.u64())
	m.ReadSatisfied = r.boolean()
	m.WriteSatisfied = r.boolean()
	m.ConcurrentOK = r.boolean()
	m.CommutativeOK = r.boolean()
	m.HasLocation = r.boolean()
	if m.HasLocation {
		m.Location = task.MemoryPlace{NodeID: int(r.u64()), Label: r.str()}
	}
	m.WriteID = r.u64()
	return m, r.err
}

func encodeRemoteAccessRelease(w *writer, m *RemoteAccessReleaseMessage) {
	w.uuidVal(m.RemoteTaskID)
	w.u64(uint64(m.AccessIndex))
}

func decodeRemoteAccessRelease(h header, r *reader) (*RemoteAccessReleaseMessage, error) {
	m := &RemoteAccessReleaseMessage{header: h}
	m.RemoteTaskID = r.uuidVal()
	m.AccessIndex = int(r.u64())
	return m, r.err
}
