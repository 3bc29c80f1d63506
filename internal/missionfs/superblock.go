package missionfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// CurrentVersion is the on-disk format version written by Format.
const CurrentVersion = 1

// Superblock magic, present at both 0x000 and 0x1F8 so a truncated or
// half-written block cannot pass for a valid superblock.
var superMagic = []byte("CUInSpac")

const (
	sbMagicTail   = 0x1F8
	sbVersionOff  = 0x08
	sbFlagsOff    = 0x09
	sbBlockSize   = 0x0C
	sbPartBlocks  = 0x10
	sbWriteCursor = 0x14
	sbCRCOff      = 0x1F4
)

var ErrInvalidSuperblock = errors.New("missionfs: invalid superblock")

var sbTable = crc32.MakeTable(crc32.Castagnoli)

// Superblock describes the log geometry and write position. The write
// cursor is partition-relative: cursor 1 means the first log block after
// the superblock is the next free block.
type Superblock struct {
	Version         uint8
	Flags           uint8
	BlockSize       uint32
	PartitionBlocks uint32
	WriteCursor     uint32
}

func newSuperblock(partitionBlocks uint32) Superblock {
	return Superblock{
		Version:         CurrentVersion,
		BlockSize:       BlockSize,
		PartitionBlocks: partitionBlocks,
		WriteCursor:     1,
	}
}

func (sb Superblock) encode() []byte {
	block := make([]byte, BlockSize)
	copy(block[0:8], superMagic)
	block[sbVersionOff] = sb.Version
	block[sbFlagsOff] = sb.Flags
	binary.LittleEndian.PutUint32(block[sbBlockSize:], sb.BlockSize)
	binary.LittleEndian.PutUint32(block[sbPartBlocks:], sb.PartitionBlocks)
	binary.LittleEndian.PutUint32(block[sbWriteCursor:], sb.WriteCursor)
	copy(block[sbMagicTail:], superMagic)
	crc := crc32.Checksum(block[:sbCRCOff], sbTable)
	binary.LittleEndian.PutUint32(block[sbCRCOff:], crc)
	return block
}

// parseSuperblock validates magic, CRC, and version. Any mismatch is a
// mount fault; a corrupt superblock is never treated as an empty one.
func parseSuperblock(block []byte) (Superblock, error) {
	if len(block) != BlockSize {
		return Superblock{}, ErrInvalidSuperblock
	}
	if !bytes.Equal(block[0:8], superMagic) || !bytes.Equal(block[sbMagicTail:sbMagicTail+8], superMagic) {
		return Superblock{}, ErrInvalidSuperblock
	}
	want := binary.LittleEndian.Uint32(block[sbCRCOff:])
	if crc32.Checksum(block[:sbCRCOff], sbTable) != want {
		return Superblock{}, ErrInvalidSuperblock
	}
	sb := Superblock{
		Version:         block[sbVersionOff],
		Flags:           block[sbFlagsOff],
		BlockSize:       binary.LittleEndian.Uint32(block[sbBlockSize:]),
		PartitionBlocks: binary.LittleEndian.Uint32(block[sbPartBlocks:]),
		WriteCursor:     binary.LittleEndian.Uint32(block[sbWriteCursor:]),
	}
	if sb.Version != CurrentVersion {
		return Superblock{}, ErrInvalidSuperblock
	}
	if sb.BlockSize != BlockSize {
		return Superblock{}, ErrInvalidSuperblock
	}
	if sb.WriteCursor == 0 || sb.WriteCursor > sb.PartitionBlocks {
		return Superblock{}, ErrInvalidSuperblock
	}
	return sb, nil
}

// hasSuperblock reports whether the block passes full superblock
// validation. Used by Format to refuse to clobber an existing log.
func hasSuperblock(block []byte) bool {
	_, err := parseSuperblock(block)
	return err == nil
}
