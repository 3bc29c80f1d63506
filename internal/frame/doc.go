// Package frame implements the radio telemetry frame codec, binary format
// version 1.
//
// # Wire format
//
// Every frame is length-prefixed and checksummed:
//
//	0xAA 0x55 | type (u8) | length (u16 LE) | payload | crc32c (u32 LE)
//
// The CRC (Castagnoli polynomial) covers type, length, and payload.
// Payloads are little-endian and open with the mission time in
// milliseconds as a u32, matching the avionics firmware structs:
//
//	rocket-status: time u32 | states u32 | blocks_recorded u32 | checkouts_missed u32
//	gnss:          time u32 | latitude i32 (1e-7 deg) | longitude i32 (1e-7 deg)
//	altitude:      time u32 | altitude i32 (mm)
//	pressure:      time u32 | pressure u32 (Pa)
//	temperature:   time u32 | temperature i32 (hundredths of a degree C)
//	humidity:      time u32 | humidity u32 (hundredths of a percent RH)
//	mission-time:  time u32
//
// The states word of a rocket-status payload packs the sensor states in
// 3-bit groups from bit 16 (KX134, altimeter, IMU, SD card) and the
// deployment state in bits 28..31.
//
// # Decode discipline
//
// Decode never interprets bytes past a fault. ErrIncomplete means the
// buffer ends mid-frame and the caller should supply more bytes without
// discarding the prefix. ErrDesync means there is no sync marker at the
// offset; the caller scans forward one byte at a time. Checksum and
// payload faults drop the frame; the caller resumes scanning immediately
// after the sync marker because the length field itself may be corrupt.
package frame
