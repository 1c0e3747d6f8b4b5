package theme

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mitchellh/go-homedir"
)

type RGB [3]uint8

type Palette struct {
	Name   string
	Colors []RGB
}

// Default is the built-in palette, dark purple through magenta and orange
// to yellow.
var Default = &Palette{
	Name: "dusk",
	Colors: []RGB{
		{0x1a, 0x0b, 0x2e},
		{0x3b, 0x1a, 0x5a},
		{0x7a, 0x2a, 0x8c},
		{0xc2, 0x3d, 0x9a},
		{0xf0, 0x5d, 0x7a},
		{0xff, 0x8c, 0x42},
		{0xff, 0xd8, 0x4a},
	},
}

// LoadGPL reads a GIMP palette file. The path may start with ~.
func LoadGPL(path string) (*Palette, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &Palette{}
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		// first 3 fields are R G B
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			r, err1 := strconv.ParseUint(fields[0], 10, 8)
			g, err2 := strconv.ParseUint(fields[1], 10, 8)
			b, err3 := strconv.ParseUint(fields[2], 10, 8)
			if err1 == nil && err2 == nil && err3 == nil {
				p.Colors = append(p.Colors, RGB{uint8(r), uint8(g), uint8(b)})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors found in palette %s", path)
	}

	return p, nil
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}
}

func fromColorful(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{r, g, b}
}

// Hex formats the color as #rrggbb.
func (c RGB) Hex() string {
	return c.colorful().Hex()
}

// Lookup returns the color at norm (0-1) along the palette, blended in
// L*a*b* between neighbouring entries.
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 || len(p.Colors) == 1 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)
	return fromColorful(p.Colors[i].colorful().BlendLab(p.Colors[i+1].colorful(), frac))
}

// Index returns color at specific index (no interpolation)
func (p *Palette) Index(i int) RGB {
	if i < 0 {
		return p.Colors[0]
	}
	if i >= len(p.Colors) {
		return p.Colors[len(p.Colors)-1]
	}
	return p.Colors[i]
}

// Dim darkens c by amount (0-1) in L*a*b*.
func Dim(c RGB, amount float64) RGB {
	return fromColorful(c.colorful().BlendLab(colorful.Color{}, amount))
}

// TrackColor gives track i of n its own hue, evenly spaced around the
// wheel at a fixed lightness so none of them washes out on a pad.
func TrackColor(i, n int) RGB {
	if n < 1 {
		n = 1
	}
	hue := 360 * float64(i%n) / float64(n)
	return fromColorful(colorful.Hcl(hue, 0.7, 0.7))
}
