package uabin

import "fmt"

// NodeID encoding masks (OPC UA Part 6, 5.2.2.9).
const (
	nodeIDTwoByte  byte = 0x00
	nodeIDFourByte byte = 0x01
	nodeIDNumeric  byte = 0x02

	// expanded NodeId flags; not supported by this package.
	nodeIDNamespaceURIFlag byte = 0x80
	nodeIDServerIndexFlag  byte = 0x40
)

// NodeID is a numeric OPC UA NodeId. String, Guid and Opaque identifiers
// are outside the subset used by the connection and secure channel layers.
type NodeID struct {
	Namespace uint16
	ID        uint32
}

// NewNodeID returns a numeric NodeId in namespace 0.
func NewNodeID(id uint32) NodeID {
	return NodeID{ID: id}
}

// IsNull reports whether n is the null NodeId (ns=0;i=0).
func (n NodeID) IsNull() bool {
	return n.Namespace == 0 && n.ID == 0
}

// String returns the standard text form, e.g. "ns=1;i=42".
func (n NodeID) String() string {
	if n.Namespace == 0 {
		return fmt.Sprintf("i=%d", n.ID)
	}
	return fmt.Sprintf("ns=%d;i=%d", n.Namespace, n.ID)
}

// ReadNodeID decodes a numeric NodeId using the smallest encoding it finds.
func (r *Reader) ReadNodeID() (NodeID, error) {
	mask, err := r.ReadByte()
	if err != nil {
		return NodeID{}, err
	}
	if mask&(nodeIDNamespaceURIFlag|nodeIDServerIndexFlag) != 0 {
		return NodeID{}, fmt.Errorf("%w: expanded NodeId flags 0x%02x", ErrUnsupported, mask)
	}
	switch mask {
	case nodeIDTwoByte:
		id, err := r.ReadByte()
		return NodeID{ID: uint32(id)}, err
	case nodeIDFourByte:
		ns, err := r.ReadByte()
		if err != nil {
			return NodeID{}, err
		}
		id, err := r.ReadUint16()
		return NodeID{Namespace: uint16(ns), ID: uint32(id)}, err
	case nodeIDNumeric:
		ns, err := r.ReadUint16()
		if err != nil {
			return NodeID{}, err
		}
		id, err := r.ReadUint32()
		return NodeID{Namespace: ns, ID: id}, err
	default:
		return NodeID{}, fmt.Errorf("%w: NodeId encoding 0x%02x", ErrUnsupported, mask)
	}
}

// WriteNodeID encodes n using the smallest numeric encoding that fits.
func (w *Writer) WriteNodeID(n NodeID) {
	switch {
	case n.Namespace == 0 && n.ID <= 0xFF:
		w.buf = append(w.buf, nodeIDTwoByte, byte(n.ID))
	case n.Namespace <= 0xFF && n.ID <= 0xFFFF:
		w.buf = append(w.buf, nodeIDFourByte, byte(n.Namespace))
		w.WriteUint16(uint16(n.ID))
	default:
		w.buf = append(w.buf, nodeIDNumeric)
		w.WriteUint16(n.Namespace)
		w.WriteUint32(n.ID)
	}
}
