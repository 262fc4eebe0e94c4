// Package util provides logging, traffic stats and small helpers shared by
// the framewire commands.
package util

import (
	"fmt"
	"hash/fnv"
	"net"
)

// ConnID computes a 4-byte hash from a connection's local and remote
// addresses. It only labels streams in logs and is not reversible.
func ConnID(local, remote net.Addr) uint32 {
	h := fnv.New32a()
	if local != nil {
		h.Write([]byte(local.String()))
	}
	if remote != nil {
		h.Write([]byte(remote.String()))
	}
	return h.Sum32()
}

// StreamName builds a log label such as "tcp 10.0.0.2:5000 [1a2b3c4d]".
func StreamName(kind string, local, remote net.Addr) string {
	peer := "?"
	if remote != nil {
		peer = remote.String()
	}
	return fmt.Sprintf("%s %s [%08x]", kind, peer, ConnID(local, remote))
}
