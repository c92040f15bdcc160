package lang

import (
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/pfq-dev/go-pfq/internal/symtab"
	"github.com/seiflotfy/cuckoofilter"
)

// Devices resolves a device name to its ifindex and performs an eager send,
// for the forwardIO/bridge/tee/tap action family. Implemented by
// internal/netdev in production, by a fake in tests.
type Devices interface {
	IfIndex(name string) (int32, bool)
	SendNow(ifindex int32, frame []byte) error
}

// Env carries the built-in catalogue's dependencies on the surrounding
// system (spec §4.4.5's action family needs a device resolver; log_*
// needs a logger).
type Env struct {
	Devices Devices
	Logger  interface{ Printf(format string, args ...interface{}) }
}

// RegisterBuiltins installs the minimum built-in catalogue from
// spec §4.4.5 into reg.
func RegisterBuiltins(reg *symtab.Registry, env *Env) {
	registerPredicates(reg)
	registerActions(reg, env)
}

// --- predicates -------------------------------------------------------

func registerPredicates(reg *symtab.Registry) {
	simple := func(name string, fn symtab.PredicateFn) {
		reg.RegisterPredicate(symtab.PredicateEntry{Name: name, Fn: fn})
	}

	simple("ip", func(_ interface{}, d *packet.Descriptor) bool {
		et, _, _, _ := packet.ParseEther(d.Frame)
		return et == packet.EtherTypeIPv4
	})
	simple("ip6", func(_ interface{}, d *packet.Descriptor) bool {
		et, _, _, _ := packet.ParseEther(d.Frame)
		return et == packet.EtherTypeIPv6
	})
	simple("tcp", func(_ interface{}, d *packet.Descriptor) bool { return l4Proto(d) == packet.ProtoTCP })
	simple("udp", func(_ interface{}, d *packet.Descriptor) bool { return l4Proto(d) == packet.ProtoUDP })
	simple("icmp", func(_ interface{}, d *packet.Descriptor) bool {
		p := l4Proto(d)
		return p == packet.ProtoICMP || p == packet.ProtoICMPv6
	})
	simple("flow", func(_ interface{}, d *packet.Descriptor) bool {
		p := l4Proto(d)
		return p == packet.ProtoTCP || p == packet.ProtoUDP || p == packet.ProtoICMP
	})
	simple("vlan", func(_ interface{}, d *packet.Descriptor) bool { return d.VLAN.Present })
	simple("has_vlan", func(_ interface{}, d *packet.Descriptor) bool { return d.VLAN.Present })
	simple("no_frag", func(_ interface{}, d *packet.Descriptor) bool {
		h, ok := ipv4Of(d)
		return !ok || (h.FragOffset == 0 && !h.MoreFragments)
	})
	simple("no_more_frag", func(_ interface{}, d *packet.Descriptor) bool {
		h, ok := ipv4Of(d)
		return !ok || !h.MoreFragments
	})

	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "is_l3_proto",
		Init: initU16,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			et, _, _, _ := packet.ParseEther(d.Frame)
			return et == state.(uint16)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "is_l4_proto",
		Init: initU8,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			return l4Proto(d) == state.(uint8)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_port", Init: initU16,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			sp, dp, ok := ports(d)
			return ok && (sp == state.(uint16) || dp == state.(uint16))
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_src_port", Init: initU16,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			sp, _, ok := ports(d)
			return ok && sp == state.(uint16)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_dst_port", Init: initU16,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			_, dp, ok := ports(d)
			return ok && dp == state.(uint16)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_addr", Init: initCIDR,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			c := state.(cidr)
			src, dst, ok := addrs(d)
			return ok && (c.contains(src) || c.contains(dst))
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_src_addr", Init: initCIDR,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			c := state.(cidr)
			src, _, ok := addrs(d)
			return ok && c.contains(src)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_dst_addr", Init: initCIDR,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			c := state.(cidr)
			_, dst, ok := addrs(d)
			return ok && c.contains(dst)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_vid", Init: initI32,
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			return d.VLAN.Present && int32(d.VLAN.VID()) == state.(int32)
		},
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_mark", Init: initU32,
		Fn: func(state interface{}, d *packet.Descriptor) bool { return d.CB.Mark == state.(uint32) },
	})
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "has_state", Init: initU32,
		Fn: func(state interface{}, d *packet.Descriptor) bool { return d.CB.State == state.(uint32) },
	})

	// bloom family: arg is a serialized cuckoofilter.Filter; membership is
	// tested against the source address's 4 (or 16) raw bytes.
	reg.RegisterPredicate(symtab.PredicateEntry{
		Name: "in_bloom_src",
		Init: func(arg []byte) (interface{}, error) { return cuckoofilter.Decode(arg) },
		Fn: func(state interface{}, d *packet.Descriptor) bool {
			f := state.(*cuckoofilter.Filter)
			src, _, ok := addrsAny(d)
			return ok && f.Lookup(src)
		},
	})
}

// --- actions ------------------------------------------------------------

func registerActions(reg *symtab.Registry, env *Env) {
	reg.RegisterMonadic(symtab.MonadicEntry{Name: "unit", Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
		d.CB.Action = packet.ActionCopy
		return d, nil
	}})

	// classify is the action form of the like-named predicates: pass
	// packets matching the class through as Copy, drop everything else.
	classify := func(name string, match func(d *packet.Descriptor) bool) {
		reg.RegisterMonadic(symtab.MonadicEntry{Name: name, Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			if !match(d) {
				d.CB.Action = packet.ActionDrop
				return d, nil
			}
			d.CB.Action = packet.ActionCopy
			return d, nil
		}})
	}
	classify("ip", func(d *packet.Descriptor) bool {
		et, _, _, _ := packet.ParseEther(d.Frame)
		return et == packet.EtherTypeIPv4
	})
	classify("ip6", func(d *packet.Descriptor) bool {
		et, _, _, _ := packet.ParseEther(d.Frame)
		return et == packet.EtherTypeIPv6
	})
	classify("udp", func(d *packet.Descriptor) bool { return l4Proto(d) == packet.ProtoUDP })
	classify("tcp", func(d *packet.Descriptor) bool { return l4Proto(d) == packet.ProtoTCP })
	classify("icmp", func(d *packet.Descriptor) bool {
		p := l4Proto(d)
		return p == packet.ProtoICMP || p == packet.ProtoICMPv6
	})

	reg.RegisterMonadic(symtab.MonadicEntry{Name: "kernel", Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
		d.CB.ForwardLog = append(d.CB.ForwardLog, packet.ForwardTarget{ToKernel: true})
		d.CB.Action = packet.ActionCopy
		return d, nil
	}})
	reg.RegisterMonadic(symtab.MonadicEntry{Name: "broadcast", Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
		d.CB.Action = packet.ActionCopy
		d.CB.ClassMask = ^uint64(0)
		return d, nil
	}})
	reg.RegisterMonadic(symtab.MonadicEntry{Name: "drop", Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
		d.CB.Action = packet.ActionDrop
		return d, nil
	}})

	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "forward", Init: initString,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			ifindex, ok := env.Devices.IfIndex(state.(string))
			if !ok {
				return d, nil
			}
			d.CB.ForwardLog = append(d.CB.ForwardLog, packet.ForwardTarget{IfIndex: ifindex})
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "forwardIO", Init: initString,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			ifindex, ok := env.Devices.IfIndex(state.(string))
			if ok {
				_ = env.Devices.SendNow(ifindex, d.Frame)
			}
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "bridge", Init: initString,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			ifindex, ok := env.Devices.IfIndex(state.(string))
			if ok {
				_ = env.Devices.SendNow(ifindex, d.Frame)
			}
			d.CB.Action = packet.ActionCopy
			return d, nil
		},
	})

	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "tee", HighOrder: true, Init: initString,
		HighOrderFn: func(state interface{}, predResult bool, d *packet.Descriptor) (*packet.Descriptor, error) {
			if predResult {
				if ifindex, ok := env.Devices.IfIndex(state.(string)); ok {
					d.CB.ForwardLog = append(d.CB.ForwardLog, packet.ForwardTarget{IfIndex: ifindex})
				}
			}
			d.CB.Action = packet.ActionCopy
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "tap", HighOrder: true, Init: initString,
		HighOrderFn: func(state interface{}, predResult bool, d *packet.Descriptor) (*packet.Descriptor, error) {
			if predResult {
				if ifindex, ok := env.Devices.IfIndex(state.(string)); ok {
					d.CB.ForwardLog = append(d.CB.ForwardLog, packet.ForwardTarget{IfIndex: ifindex})
				}
				return d, nil
			}
			d.CB.Action = packet.ActionCopy
			return d, nil
		},
	})

	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "mark", Init: initU32,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			d.CB.Mark = state.(uint32)
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "put_state", Init: initU32,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			d.CB.State = state.(uint32)
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "inc", Init: initI32,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			d.CB.State += uint32(state.(int32))
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "dec", Init: initI32,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			d.CB.State -= uint32(state.(int32))
			return d, nil
		},
	})

	logAction := func(name string) {
		reg.RegisterMonadic(symtab.MonadicEntry{Name: name, Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			if env.Logger != nil {
				env.Logger.Printf("%s: ifindex=%d len=%d mark=%d", name, d.IfIndex, d.Len, d.CB.Mark)
			}
			return d, nil
		}})
	}
	logAction("log_msg")
	logAction("log_packet")
	logAction("log_buff")

	steer := func(name string, hash func(d *packet.Descriptor) uint32) {
		reg.RegisterMonadic(symtab.MonadicEntry{Name: name, Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			d.CB.Action = packet.ActionSteer
			d.CB.Hash = hash(d)
			return d, nil
		}})
	}
	steer("steer_rrobin", func(d *packet.Descriptor) uint32 { return xxhash.Checksum32(d.Frame) })
	steer("steer_link", func(d *packet.Descriptor) uint32 {
		if len(d.Frame) < 12 {
			return 0
		}
		return xxhash.Checksum32(d.Frame[0:12])
	})
	steer("steer_vlan", func(d *packet.Descriptor) uint32 { return uint32(d.VLAN.TCI) })
	steer("steer_ip", func(d *packet.Descriptor) uint32 {
		src, dst, ok := addrs(d)
		if !ok {
			return 0
		}
		return xxhash.Checksum32(append(append([]byte{}, src[:]...), dst[:]...))
	})
	steer("steer_ip6", func(d *packet.Descriptor) uint32 {
		src, dst, ok := addrs6(d)
		if !ok {
			return 0
		}
		return xxhash.Checksum32(append(append([]byte{}, src[:]...), dst[:]...))
	})
	steer("steer_flow", func(d *packet.Descriptor) uint32 {
		src, dst, ok := addrsAny(d)
		sp, dp, _ := ports(d)
		if !ok {
			return 0
		}
		buf := append(append([]byte{}, src...), dst...)
		buf = binary.BigEndian.AppendUint16(buf, sp)
		buf = binary.BigEndian.AppendUint16(buf, dp)
		return xxhash.Checksum32(buf)
	})
	steer("steer_rtp", func(d *packet.Descriptor) uint32 {
		sp, dp, ok := ports(d)
		if !ok {
			return 0
		}
		return uint32(sp) ^ uint32(dp)
	})

	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "steer_net", Init: initCIDR,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			c := state.(cidr)
			src, _, ok := addrs(d)
			d.CB.Action = packet.ActionSteer
			if ok && c.contains(src) {
				d.CB.Hash = xxhash.Checksum32(src[:])
			}
			return d, nil
		},
	})
	reg.RegisterMonadic(symtab.MonadicEntry{
		Name: "steer_field", Init: initOffsetSize,
		Fn: func(state interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
			os := state.(offsetSize)
			d.CB.Action = packet.ActionSteer
			if os.off+os.size <= len(d.Frame) {
				d.CB.Hash = xxhash.Checksum32(d.Frame[os.off : os.off+os.size])
			}
			return d, nil
		},
	})
}

// --- argument decoding --------------------------------------------------

type cidr struct {
	addr [4]byte
	bits int
}

func (c cidr) contains(addr [4]byte) bool {
	mask := ^uint32(0) << uint(32-c.bits)
	a := binary.BigEndian.Uint32(addr[:])
	n := binary.BigEndian.Uint32(c.addr[:])
	return a&mask == n&mask
}

type offsetSize struct{ off, size int }

func initU8(arg []byte) (interface{}, error) {
	if len(arg) < 1 {
		return nil, fmt.Errorf("lang: expected 1-byte argument")
	}
	return arg[0], nil
}

func initU16(arg []byte) (interface{}, error) {
	if len(arg) < 2 {
		return nil, fmt.Errorf("lang: expected 2-byte argument")
	}
	return binary.BigEndian.Uint16(arg), nil
}

func initU32(arg []byte) (interface{}, error) {
	if len(arg) < 4 {
		return nil, fmt.Errorf("lang: expected 4-byte argument")
	}
	return binary.BigEndian.Uint32(arg), nil
}

func initI32(arg []byte) (interface{}, error) {
	v, err := initU32(arg)
	if err != nil {
		return nil, err
	}
	return int32(v.(uint32)), nil
}

func initString(arg []byte) (interface{}, error) {
	return string(arg), nil
}

func initCIDR(arg []byte) (interface{}, error) {
	if len(arg) < 5 {
		return nil, fmt.Errorf("lang: expected 5-byte CIDR argument")
	}
	var c cidr
	copy(c.addr[:], arg[0:4])
	c.bits = int(arg[4])
	return c, nil
}

func initOffsetSize(arg []byte) (interface{}, error) {
	if len(arg) < 8 {
		return nil, fmt.Errorf("lang: expected 8-byte offset/size argument")
	}
	return offsetSize{
		off:  int(binary.BigEndian.Uint32(arg[0:4])),
		size: int(binary.BigEndian.Uint32(arg[4:8])),
	}, nil
}

// --- packet helpers -------------------------------------------------------

func l4Proto(d *packet.Descriptor) uint8 {
	et, off, _, _ := packet.ParseEther(d.Frame)
	switch et {
	case packet.EtherTypeIPv4:
		h, ok := packet.ParseIPv4(d.Frame, off)
		if !ok {
			return 0
		}
		return h.Protocol
	case packet.EtherTypeIPv6:
		h, ok := packet.ParseIPv6(d.Frame, off)
		if !ok {
			return 0
		}
		return h.NextHeader
	}
	return 0
}

func ipv4Of(d *packet.Descriptor) (packet.IPv4Header, bool) {
	et, off, _, _ := packet.ParseEther(d.Frame)
	if et != packet.EtherTypeIPv4 {
		return packet.IPv4Header{}, false
	}
	return packet.ParseIPv4(d.Frame, off)
}

func addrs(d *packet.Descriptor) (src, dst [4]byte, ok bool) {
	h, ok := ipv4Of(d)
	if !ok {
		return src, dst, false
	}
	return h.Src, h.Dst, true
}

func ipv6Of(d *packet.Descriptor) (packet.IPv6Header, bool) {
	et, off, _, _ := packet.ParseEther(d.Frame)
	if et != packet.EtherTypeIPv6 {
		return packet.IPv6Header{}, false
	}
	return packet.ParseIPv6(d.Frame, off)
}

func addrs6(d *packet.Descriptor) (src, dst [16]byte, ok bool) {
	h, ok := ipv6Of(d)
	if !ok {
		return src, dst, false
	}
	return h.Src, h.Dst, true
}

// addrsAny extracts source/destination address bytes regardless of IP
// version: 4 bytes for IPv4, 16 for IPv6.
func addrsAny(d *packet.Descriptor) (src, dst []byte, ok bool) {
	if h, ok4 := ipv4Of(d); ok4 {
		return h.Src[:], h.Dst[:], true
	}
	if h, ok6 := ipv6Of(d); ok6 {
		return h.Src[:], h.Dst[:], true
	}
	return nil, nil, false
}

func ports(d *packet.Descriptor) (sport, dport uint16, ok bool) {
	et, off, _, _ := packet.ParseEther(d.Frame)
	var l4off, proto int
	switch et {
	case packet.EtherTypeIPv4:
		h, ipok := packet.ParseIPv4(d.Frame, off)
		if !ipok {
			return 0, 0, false
		}
		l4off = off + h.HeaderLen
		proto = int(h.Protocol)
	case packet.EtherTypeIPv6:
		h, ipok := packet.ParseIPv6(d.Frame, off)
		if !ipok {
			return 0, 0, false
		}
		l4off = off + 40
		proto = int(h.NextHeader)
	default:
		return 0, 0, false
	}
	if proto != packet.ProtoTCP && proto != packet.ProtoUDP {
		return 0, 0, false
	}
	return packet.L4Ports(d.Frame, l4off)
}
