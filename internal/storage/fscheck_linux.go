//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// linuxFSNames maps statfs magic numbers to the names isNetworkFilesystem
// knows. Anything else is reported as hex and treated as local.
var linuxFSNames = map[uint64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
	0x01021997: "9p",
	0x5346414F: "afs",
}

func detectFilesystemType(path string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	magic := uint64(st.Type) & 0xFFFFFFFF
	if name, ok := linuxFSNames[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
