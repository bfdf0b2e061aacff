package bootimg

import "fmt"

// OSVersion is the unpacked os_version header field.
//
// For version A.B.C and patch level Y-M:
//
//	ver = A << 14 | B << 7 | C         (7 bits for each of A, B, C)
//	lvl = ((Y - 2000) & 127) << 4 | M  (7 bits for Y, 4 bits for M)
//	os_version = ver << 11 | lvl
type OSVersion struct {
	Major, Minor, Patch int
	Year, Month         int
}

func DecodeOSVersion(v uint32) OSVersion {
	ver := v >> 11
	lvl := v & 0x7ff
	return OSVersion{
		Major: int(ver>>14) & 0x7f,
		Minor: int(ver>>7) & 0x7f,
		Patch: int(ver) & 0x7f,
		Year:  int(lvl>>4) + 2000,
		Month: int(lvl) & 0xf,
	}
}

func (v OSVersion) Encode() uint32 {
	ver := uint32(v.Major&0x7f)<<14 | uint32(v.Minor&0x7f)<<7 | uint32(v.Patch&0x7f)
	lvl := uint32((v.Year-2000)&0x7f)<<4 | uint32(v.Month&0xf)
	return ver<<11 | lvl
}

func (v OSVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// PatchLevel returns the security patch level as YYYY-MM.
func (v OSVersion) PatchLevel() string {
	return fmt.Sprintf("%04d-%02d", v.Year, v.Month)
}
