// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/cockroachdb/pagepool/index"
)

// IP protocol numbers with names.
const (
	ProtoICMP   uint8 = 1
	ProtoTCP    uint8 = 6
	ProtoUDP    uint8 = 17
	ProtoGRE    uint8 = 47
	ProtoICMPv6 uint8 = 58
	ProtoSCTP   uint8 = 132
)

// protoNames is indexed by protocol number. Every uint8 lands on a slot, and
// unnamed numbers read the anchor.
var protoNames = index.NewArray1("unknown",
	index.Entry[string]{Index: uint32(ProtoICMP), Value: "icmp"},
	index.Entry[string]{Index: uint32(ProtoTCP), Value: "tcp"},
	index.Entry[string]{Index: uint32(ProtoUDP), Value: "udp"},
	index.Entry[string]{Index: uint32(ProtoGRE), Value: "gre"},
	index.Entry[string]{Index: uint32(ProtoICMPv6), Value: "icmpv6"},
	index.Entry[string]{Index: uint32(ProtoSCTP), Value: "sctp"},
)

// ProtoName returns the name of IP protocol p, or "unknown".
func ProtoName(p uint8) string {
	return protoNames.At(uint32(p))
}

// keySize is the encoded length of a Key.
const keySize = 16 + 16 + 2 + 2 + 1

// Key identifies a flow by its 5-tuple. Addresses are stored in 16-byte form
// with IPv4 mapped, so a Key holds no pointers and can live in a pool page.
type Key struct {
	Src     [16]byte
	Dst     [16]byte
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// MakeKey returns the Key for a flow from src to dst.
func MakeKey(src, dst netip.AddrPort, proto uint8) Key {
	return Key{
		Src:     src.Addr().As16(),
		Dst:     dst.Addr().As16(),
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Proto:   proto,
	}
}

// SrcAddr returns the source address and port.
func (k Key) SrcAddr() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(k.Src).Unmap(), k.SrcPort)
}

// DstAddr returns the destination address and port.
func (k Key) DstAddr() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(k.Dst).Unmap(), k.DstPort)
}

// Reverse returns the key of the opposite direction.
func (k Key) Reverse() Key {
	return Key{
		Src:     k.Dst,
		Dst:     k.Src,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
		Proto:   k.Proto,
	}
}

// bytes encodes k in a fixed layout with no padding, so equal keys always
// hash equally.
func (k Key) bytes() [keySize]byte {
	var b [keySize]byte
	copy(b[0:16], k.Src[:])
	copy(b[16:32], k.Dst[:])
	binary.BigEndian.PutUint16(b[32:], k.SrcPort)
	binary.BigEndian.PutUint16(b[34:], k.DstPort)
	b[36] = k.Proto
	return b
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s->%s", ProtoName(k.Proto), k.SrcAddr(), k.DstAddr())
}
