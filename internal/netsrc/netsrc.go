// Package netsrc implements the network-attached SampleSource described in
// SPEC_FULL.md §3.1: a reader over .pcap-format capture dumps of a
// network-attached SDR front end that streams I/Q bytes UDP-encapsulated
// inside Ethernet/IPv4 frames, plus a live UDP listener for the same wire
// shape. Header walking is grounded on internal/eth/eth.go, adapted from
// Chapter-10 Ethernet-attached-data parsing to this capture-replay source.
package netsrc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/uatdecode/uatd/internal/eth"
)

// pcap global/per-packet header layout (libpcap classic format, RFC-adjacent).
const (
	pcapMagicLE = 0xA1B2C3D4
	pcapMagicBE = 0xD4C3B2A1
	globalHdrLen = 24
	packetHdrLen = 16
)

var (
	ErrBadMagic     = errors.New("netsrc: not a pcap capture (bad magic)")
	ErrTruncated    = errors.New("netsrc: truncated capture")
	ErrNotUDPSample = errors.New("netsrc: packet does not carry a UDP sample payload")
)

// Packet is one decoded capture record: the wall-clock time libpcap stored
// for it, and the UDP payload bytes carrying raw I/Q samples.
type Packet struct {
	Timestamp time.Time
	Payload   []byte
}

// PcapReader replays a libpcap-format capture file, extracting the UDP
// payload of every Ethernet/IPv4/UDP frame it contains and skipping
// anything else (ARP, non-IP, malformed headers) as spec.md §7's I/O-error
// policy allows for a source: a single bad record does not abort the read.
type PcapReader struct {
	r         io.Reader
	bigEndian bool
}

// NewPcapReader validates the 24-byte global header and returns a reader
// positioned at the first packet record.
func NewPcapReader(r io.Reader) (*PcapReader, error) {
	hdr := make([]byte, globalHdrLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("netsrc: reading global header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	switch magic {
	case pcapMagicLE:
		return &PcapReader{r: r, bigEndian: false}, nil
	case pcapMagicBE:
		return &PcapReader{r: r, bigEndian: true}, nil
	default:
		return nil, ErrBadMagic
	}
}

func (p *PcapReader) order() binary.ByteOrder {
	if p.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Next returns the next UDP-encapsulated sample packet, skipping any
// non-UDP or malformed record. It returns io.EOF when the capture is
// exhausted.
func (p *PcapReader) Next() (Packet, error) {
	for {
		hdr := make([]byte, packetHdrLen)
		if _, err := io.ReadFull(p.r, hdr); err != nil {
			if err == io.ErrUnexpectedEOF {
				return Packet{}, ErrTruncated
			}
			return Packet{}, err
		}
		order := p.order()
		sec := order.Uint32(hdr[0:4])
		usec := order.Uint32(hdr[4:8])
		capLen := order.Uint32(hdr[8:12])

		buf := make([]byte, capLen)
		if _, err := io.ReadFull(p.r, buf); err != nil {
			return Packet{}, ErrTruncated
		}

		payload, ok := extractUDPPayload(buf)
		if !ok {
			continue
		}
		return Packet{
			Timestamp: time.Unix(int64(sec), int64(usec)*1000),
			Payload:   payload,
		}, nil
	}
}

// extractUDPPayload walks an Ethernet/IPv4/UDP frame and returns its UDP
// payload, or false if the frame isn't shaped that way.
func extractUDPPayload(buf []byte) ([]byte, bool) {
	_, etherType, _, payloadOff, frameLen, err := eth.ParseEthernet(buf)
	if err != nil || etherType != 0x0800 {
		return nil, false
	}
	ipBuf := buf[payloadOff:frameLen]
	ihl, totalLen, proto, _, _, _, err := eth.ParseIPv4(ipBuf)
	if err != nil || proto != 17 { // UDP
		return nil, false
	}
	_, _, udpLen, _, udpOff, err := eth.ParseUDP(ipBuf, ihl)
	if err != nil {
		return nil, false
	}
	end := udpOff + int(udpLen)
	if end > len(ipBuf) || int(udpLen) < 8 {
		return nil, false
	}
	if totalLen > len(ipBuf) {
		return nil, false
	}
	return ipBuf[udpOff+8 : end], true
}

// UDPListener is the live-capture counterpart of PcapReader: it reads raw
// I/Q sample datagrams directly off a UDP socket, one datagram per batch
// handed to the caller's HandleSamples-shaped callback.
type UDPListener struct {
	conn *net.UDPConn
}

func ListenUDP(addr string) (*UDPListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("netsrc: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("netsrc: listen %q: %w", addr, err)
	}
	return &UDPListener{conn: conn}, nil
}

func (l *UDPListener) Close() error { return l.conn.Close() }

// Run reads datagrams until the socket is closed or a read error occurs,
// invoking fn once per datagram with the receive timestamp. It returns nil
// on a clean close (spec.md §7: EOF/close ends a source gracefully).
func (l *UDPListener) Run(fn func(payload []byte, receivedAt time.Time)) error {
	buf := make([]byte, 65535)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("netsrc: read: %w", err)
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		fn(payload, time.Now())
	}
}
