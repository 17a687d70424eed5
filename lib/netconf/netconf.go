// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package netconf parses and renders systemd-networkd configuration
// for machines. Each machine gets one address on the host bridge,
// derived from the bridge's gateway by replacing the last octet with
// the machine identifier — machine 12 on a 10.0.0.1/24 bridge is
// 10.0.0.12. The address therefore encodes the identifier, which is
// why rename and clone rewrite the machine's network file.
//
// Functions here are pure reads and string transforms. Writing the
// rendered file into a machine subtree (with ownership propagation)
// is the machine package's job.
package netconf

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Addresses returns the bare IPs of every Address= line in a
// systemd-networkd file, in file order, prefix lengths stripped.
func Addresses(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseAddresses(string(data)), nil
}

// Gateway returns the bare IP of the first Address= line in the
// bridge's network file. That address doubles as the default gateway
// for every machine on the bridge.
func Gateway(bridgeFile string) (string, error) {
	data, err := os.ReadFile(bridgeFile)
	if err != nil {
		return "", fmt.Errorf("reading bridge config: %w", err)
	}
	addresses := parseAddresses(string(data))
	if len(addresses) == 0 {
		return "", fmt.Errorf("no Address= line in %s", bridgeFile)
	}
	return addresses[0], nil
}

// Derive returns the machine's bridge address: the gateway with its
// last octet replaced by the identifier. The gateway must be IPv4 —
// the identifier-to-octet scheme has no IPv6 analogue.
func Derive(gateway, id string) (string, error) {
	ip4 := net.ParseIP(gateway).To4()
	if ip4 == nil {
		return "", fmt.Errorf("bridge gateway %q is not an IPv4 address", gateway)
	}
	octet, err := strconv.Atoi(id)
	if err != nil || octet < 0 || octet > 255 {
		return "", fmt.Errorf("identifier %q is not a valid address octet", id)
	}
	return net.IPv4(ip4[0], ip4[1], ip4[2], byte(octet)).String(), nil
}

// Render returns the content of a machine's host0.network file. The
// /24 prefix is fixed: machines share one flat bridge network, and
// the derivation scheme only varies the last octet.
func Render(address, gateway string) string {
	return "[Match]\n" +
		"Name=host0\n" +
		"\n" +
		"[Network]\n" +
		"Address=" + address + "/24\n" +
		"Gateway=" + gateway + "\n"
}

func parseAddresses(content string) []string {
	var addresses []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		value, found := strings.CutPrefix(line, "Address=")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		if index := strings.IndexByte(value, '/'); index >= 0 {
			value = value[:index]
		}
		if value != "" {
			addresses = append(addresses, value)
		}
	}
	return addresses
}
