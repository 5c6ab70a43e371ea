//go:build linux

package labnet

//
// ICMP reachability probes
//

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// pingSeq increments once per probe so that stray replies from a
// previous probe cannot be mistaken for the current one.
var pingSeq = &atomic.Uint32{}

// Ping implements Backend. It opens a raw ICMP socket inside the
// source node's namespace, sends a single echo request, and waits
// for the matching reply.
func (b *NetnsBackend) Ping(
	ctx context.Context,
	fromNode string,
	destAddr string,
	timeout time.Duration,
) (time.Duration, error) {
	node := b.nodes[fromNode]
	if node == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, fromNode)
	}
	dest := net.ParseIP(destAddr)
	if dest = dest.To4(); dest == nil {
		return 0, fmt.Errorf("labnet: %s: not an IPv4 address: %s", fromNode, destAddr)
	}
	b.logger.Debugf("labnet: %s: ping -c 1 %s", fromNode, destAddr)
	return pingOnce(ctx, node.ns, dest, timeout)
}

// pingOnce sends one echo request from the given namespace and
// waits for the matching echo reply.
func pingOnce(
	ctx context.Context,
	ns netns.NsHandle,
	dest net.IP,
	timeout time.Duration,
) (time.Duration, error) {
	// open the socket while joined to the namespace: a socket stays
	// bound to the namespace it was created in
	var fd int
	err := withNamespace(ns, func() error {
		var sockErr error
		fd, sockErr = unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
		return sockErr
	})
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)

	id := uint16(os.Getpid() & 0xffff)
	seq := uint16(pingSeq.Add(1))

	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixNano()))

	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	buffer := gopacket.NewSerializeBuffer()
	options := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, options, echo, gopacket.Payload(payload)); err != nil {
		return 0, err
	}

	sa := &unix.SockaddrInet4{}
	copy(sa.Addr[:], dest)
	start := time.Now()
	if err := unix.Sendto(fd, buffer.Bytes(), 0, sa); err != nil {
		return 0, err
	}

	deadline := start.Add(timeout)
	reply := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrPingTimeout
		}
		tv := unix.NsecToTimeval(remaining.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return 0, err
		}
		count, _, err := unix.Recvfrom(fd, reply, 0)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return 0, err
		}
		// a raw ICMP socket sees every ICMP packet delivered to the
		// namespace, so we must match id and sequence explicitly
		if matchEchoReply(reply[:count], id, seq) {
			return time.Since(start), nil
		}
	}
}

// matchEchoReply dissects a raw IPv4 packet and tells whether it is
// the echo reply matching the given id and sequence number.
func matchEchoReply(raw []byte, id, seq uint16) bool {
	packet := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Default)
	icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
	if icmpLayer == nil {
		return false
	}
	icmp := icmpLayer.(*layers.ICMPv4)
	return icmp.TypeCode.Type() == layers.ICMPv4TypeEchoReply &&
		icmp.Id == id && icmp.Seq == seq
}
