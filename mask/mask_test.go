package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	assert.Equal(t, Last(0b0000_1111, I1), byte(0b0000_0001))
	assert.Equal(t, Last(0b0000_1111, I2), byte(0b0000_0011))
	assert.Equal(t, Last(0b1000_1111, I3), byte(0b0000_0111))
	assert.Equal(t, Last(0b1000_1111, I4), byte(0b0000_1111))

	assert.Equal(t, First(0b1111_1111, 1), byte(0b0000_0001))
	assert.Equal(t, First(0b1010_1111, 4), byte(0b0000_1010))

	assert.Equal(t, Range(0b1101_1000, I1, I2), byte(0b0000_0011))
	assert.Equal(t, Range(0b1101_1000, I2, I4), byte(0b0000_0101))
	assert.Equal(t, Range(0b1101_1000, I4, I5), byte(0b0000_0011))
	assert.Equal(t, Range(0b1101_1000, I5, I8), byte(0b0000_1000))

	assert.True(t, IsSet(0b1101_1000, 1))
	assert.True(t, IsSet(0b1101_1000, 2))
	assert.False(t, IsSet(0b1101_1000, 3))
	assert.True(t, IsSet(0b1101_1000, 4))
}

func TestModRM(t *testing.T) {
	// c3 = 11 000 011 -> mod=3 (register), reg=0 (ax), rm=3 (bx)
	assert.Equal(t, Mod(0xc3), byte(3))
	assert.Equal(t, Reg(0xc3), byte(0))
	assert.Equal(t, RM(0xc3), byte(3))

	// 46 = 01 000 110 -> mod=1 (disp8), reg=0, rm=6 (bp)
	assert.Equal(t, Mod(0x46), byte(1))
	assert.Equal(t, Reg(0x46), byte(0))
	assert.Equal(t, RM(0x46), byte(6))

	// 9d = 10 011 101 -> mod=2 (disp16), reg=3 (bx), rm=5 (di)
	assert.Equal(t, Mod(0x9d), byte(2))
	assert.Equal(t, Reg(0x9d), byte(3))
	assert.Equal(t, RM(0x9d), byte(5))

	// SIB fields use the same split
	assert.Equal(t, Scale(0b1101_1000), byte(3))
	assert.Equal(t, Index(0b1101_1000), byte(3))
	assert.Equal(t, Base(0b1101_1000), byte(0))
}

func TestWord(t *testing.T) {
	assert.Equal(t, Word(0x12, 0x34), uint16(0x1234))
	assert.Equal(t, Dword(0x1234, 0x5678), uint32(0x12345678))

	hi, lo := SplitWord(0x1234)
	assert.Equal(t, hi, byte(0x12))
	assert.Equal(t, lo, byte(0x34))
}

func BenchmarkRange(b *testing.B) {
	for range b.N {
		Range(0b1101_1000, I3, I5)
	}
}
