package listing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
)

// stdLuminance is the IJG base luminance quantization table in natural order.
var stdLuminance = [64]int{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

// unzigzag maps the i-th coefficient of a DQT segment to its natural index.
var unzigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

var errNoLuminanceTable = errors.New("no luminance quantization table before scan data")

// JPEGQuality estimates the IJG quality factor (1-100) a JPEG stream was
// compressed with by matching its luminance quantization table against the
// scaled standard table.
func JPEGQuality(r io.Reader) (int, error) {
	table, err := readLuminanceTable(bufio.NewReader(r))
	if err != nil {
		return 0, err
	}
	best, bestDist := 0, math.MaxInt
	for q := 1; q <= 100; q++ {
		expected := ScaledLuminance(q)
		dist := 0
		for i := range table {
			d := table[i] - expected[i]
			if d < 0 {
				d = -d
			}
			dist += d
		}
		if dist < bestDist {
			best, bestDist = q, dist
		}
	}
	return best, nil
}

// ScaledLuminance returns the baseline luminance table libjpeg produces for
// quality q, in natural order.
func ScaledLuminance(q int) [64]int {
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	var scale int
	if q < 50 {
		scale = 5000 / q
	} else {
		scale = 200 - 2*q
	}
	var out [64]int
	for i, v := range stdLuminance {
		x := (v*scale + 50) / 100
		if x < 1 {
			x = 1
		}
		if x > 255 {
			x = 255
		}
		out[i] = x
	}
	return out
}

func readLuminanceTable(r *bufio.Reader) ([64]int, error) {
	var table [64]int
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil {
		return table, fmt.Errorf("read SOI: %w", err)
	}
	if soi[0] != 0xFF || soi[1] != 0xD8 {
		return table, errors.New("not a JPEG stream")
	}

	for {
		marker, err := nextMarker(r)
		if err != nil {
			return table, err
		}
		switch {
		case marker == 0xD9 || marker == 0xDA:
			return table, errNoLuminanceTable
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return table, fmt.Errorf("read segment length: %w", err)
		}
		length := int(lenBuf[0])<<8 | int(lenBuf[1]) - 2
		if length < 0 {
			return table, fmt.Errorf("invalid length for marker 0x%02X", marker)
		}
		segment := make([]byte, length)
		if _, err := io.ReadFull(r, segment); err != nil {
			return table, fmt.Errorf("read segment 0x%02X: %w", marker, err)
		}
		if marker != 0xDB {
			continue
		}

		for len(segment) > 0 {
			precision, id := segment[0]>>4, segment[0]&0x0F
			size := 64
			if precision == 1 {
				size = 128
			}
			if len(segment) < 1+size {
				return table, errors.New("truncated DQT segment")
			}
			values := segment[1 : 1+size]
			if id == 0 {
				for i := 0; i < 64; i++ {
					v := int(values[i])
					if precision == 1 {
						v = int(values[2*i])<<8 | int(values[2*i+1])
					}
					table[unzigzag[i]] = v
				}
				return table, nil
			}
			segment = segment[1+size:]
		}
	}
}

func nextMarker(r *bufio.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read marker: %w", err)
	}
	if b != 0xFF {
		return 0, fmt.Errorf("expected marker, found 0x%02X", b)
	}
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("read marker: %w", err)
		}
		if b != 0xFF {
			return b, nil
		}
	}
}
