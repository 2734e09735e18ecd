/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package wireguard configures WireGuard interfaces over the "wireguard"
// generic netlink family (WG_GENL_NAME / WG_GENL_VERSION), the way
// wireguard-tools' wg(8) does, built on pkg/genl rather than
// golang.zx2c4.com/wireguard/wgctrl. Grounded on driver/ethtool.go's
// generic-netlink dial/GetFamily/execute pattern, redirected at a
// different family's command set.
package wireguard

import (
	"context"
	"fmt"
	"net"

	"github.com/google/netlinkgo/pkg/genl"
	"github.com/google/netlinkgo/pkg/nlmsg"

	"github.com/pkg/errors"
)

const familyName = "wireguard"

const (
	cmdGetDevice uint8 = 0
	cmdSetDevice uint8 = 1
)

const (
	deviceAIfindex    uint16 = 1
	deviceAIfname     uint16 = 2
	deviceAPrivateKey uint16 = 3
	deviceAPublicKey  uint16 = 4
	deviceAFlags      uint16 = 5
	deviceAListenPort uint16 = 6
	deviceAPeers      uint16 = 8

	peerAPublicKey                   uint16 = 1
	peerAEndpoint                    uint16 = 4
	peerAPersistentKeepaliveInterval uint16 = 5
	peerAAllowedips                  uint16 = 9

	allowedipAFamily uint16 = 1
	allowedipAIPAddr uint16 = 2
	allowedipACIDRMask uint16 = 3
)

// Key is a 32-byte WireGuard Curve25519 key, base64-free at this layer --
// encoding/decoding to the wg(8) textual form belongs to a CLI, not here.
type Key [32]byte

// Peer describes one WireGuard peer configuration.
type Peer struct {
	PublicKey           Key
	Endpoint            *net.UDPAddr
	PersistentKeepalive uint16
	AllowedIPs          []net.IPNet
}

// Device describes a WireGuard interface's full configuration.
type Device struct {
	Name       string
	PrivateKey Key
	ListenPort uint16
	Peers      []Peer
}

// Client talks to the "wireguard" generic netlink family.
type Client struct {
	genl     *genl.Conn
	familyID uint16
}

// New resolves the wireguard family on genlConn, failing if the kernel
// module isn't loaded.
func New(ctx context.Context, genlConn *genl.Conn) (*Client, error) {
	id, err := genlConn.GetFamily(ctx, familyName)
	if err != nil {
		return nil, errors.Wrap(err, "wireguard: family not available (is the wireguard module loaded?)")
	}
	return &Client{genl: genlConn, familyID: id}, nil
}

func encodeAllowedIP(enc *nlmsg.AttributeEncoder, n net.IPNet) {
	enc.Nested(0, func(a *nlmsg.AttributeEncoder) error {
		family := uint16(2)
		if n.IP.To4() == nil {
			family = 10
		}
		a.Uint16(allowedipAFamily, family)
		a.IP(allowedipAIPAddr, n.IP)
		ones, _ := n.Mask.Size()
		a.Uint8(allowedipACIDRMask, uint8(ones))
		return nil
	})
}

// ConfigureDevice pushes dev's configuration via WG_CMD_SET_DEVICE,
// replacing the peer list entirely (the wgtypes.Config{ReplacePeers:
// true} equivalent).
func (c *Client) ConfigureDevice(ctx context.Context, dev Device) error {
	enc := nlmsg.NewAttributeEncoder()
	enc.String(deviceAIfname, dev.Name)
	enc.Bytes(deviceAPrivateKey, dev.PrivateKey[:])
	enc.Uint32(deviceAFlags, 1) // WGDEVICE_F_REPLACE_PEERS
	if dev.ListenPort != 0 {
		enc.Uint16(deviceAListenPort, dev.ListenPort)
	}
	enc.Nested(deviceAPeers, func(peers *nlmsg.AttributeEncoder) error {
		for _, p := range dev.Peers {
			peers.Nested(0, func(peer *nlmsg.AttributeEncoder) error {
				peer.Bytes(peerAPublicKey, p.PublicKey[:])
				if p.PersistentKeepalive != 0 {
					peer.Uint16(peerAPersistentKeepaliveInterval, p.PersistentKeepalive)
				}
				if p.Endpoint != nil {
					peer.Bytes(peerAEndpoint, encodeSockaddr(p.Endpoint))
				}
				peer.Nested(peerAAllowedips, func(ips *nlmsg.AttributeEncoder) error {
					for _, ip := range p.AllowedIPs {
						encodeAllowedIP(ips, ip)
					}
					return nil
				})
				return nil
			})
		}
		return nil
	})
	body, err := enc.Encode()
	if err != nil {
		return errors.Wrap(err, "wireguard: encode device")
	}
	_, err = c.genl.Execute(ctx, c.familyID, genl.Header{Command: cmdSetDevice, Version: 1}, body)
	return err
}

// encodeSockaddr renders addr as a raw sockaddr_in/sockaddr_in6 the way the
// kernel's wireguard driver expects WGPEER_A_ENDPOINT to be framed.
func encodeSockaddr(addr *net.UDPAddr) []byte {
	if ip4 := addr.IP.To4(); ip4 != nil {
		b := make([]byte, 16)
		b[0], b[1] = 2, 0 // AF_INET
		b[2] = byte(addr.Port >> 8)
		b[3] = byte(addr.Port)
		copy(b[4:8], ip4)
		return b
	}
	b := make([]byte, 28)
	b[0], b[1] = 10, 0 // AF_INET6
	b[2] = byte(addr.Port >> 8)
	b[3] = byte(addr.Port)
	copy(b[8:24], addr.IP.To16())
	return b
}

// GetDevice retrieves dev's live configuration.
func (c *Client) GetDevice(ctx context.Context, name string) (Device, error) {
	enc := nlmsg.NewAttributeEncoder()
	enc.String(deviceAIfname, name)
	body, _ := enc.Encode()
	reply, err := c.genl.Execute(ctx, c.familyID, genl.Header{Command: cmdGetDevice, Version: 1}, body)
	if err != nil {
		return Device{}, fmt.Errorf("wireguard: get device %q: %w", name, err)
	}
	return decodeDevice(reply.Data), nil
}

func decodeDevice(b []byte) Device {
	var dev Device
	ad, _ := nlmsg.NewAttributeDecoder(b)
	for ad.Next() {
		switch ad.Type() {
		case deviceAIfname:
			dev.Name = ad.String()
		case deviceAListenPort:
			dev.ListenPort = ad.Uint16()
		case deviceAPeers:
			ad.Nested(func(peers *nlmsg.AttributeDecoder) error {
				for peers.Next() {
					var p Peer
					peers.Nested(func(peer *nlmsg.AttributeDecoder) error {
						for peer.Next() {
							if peer.Type() == peerAPublicKey {
								copy(p.PublicKey[:], peer.Bytes())
							}
						}
						return peer.Err()
					})
					dev.Peers = append(dev.Peers, p)
				}
				return peers.Err()
			})
		}
	}
	return dev
}
