package theme

import (
	"os"
	"path/filepath"
	"testing"
)

func near(a, b RGB) bool {
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < -1 || d > 1 {
			return false
		}
	}
	return true
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}, {255, 255, 255}}}

	if got := p.Lookup(-1); got != p.Colors[0] {
		t.Errorf("Lookup(-1) = %v", got)
	}
	if got := p.Lookup(2); got != p.Colors[2] {
		t.Errorf("Lookup(2) = %v", got)
	}
	if got := p.Lookup(0.5); !near(got, p.Colors[1]) {
		t.Errorf("Lookup(0.5) = %v, want about %v", got, p.Colors[1])
	}
	// a blend between black and the middle entry is darker than the entry
	mid := p.Lookup(0.25)
	if mid[0] == 0 || mid[0] >= 200 {
		t.Errorf("Lookup(0.25) = %v", mid)
	}

	one := &Palette{Colors: []RGB{{9, 9, 9}}}
	if got := one.Lookup(0.5); got != one.Colors[0] {
		t.Errorf("single color palette Lookup = %v", got)
	}
}

func TestLoadGPL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gpl")
	data := "GIMP Palette\nName: test\nColumns: 2\n#\n 10  20  30\tfirst\n255 0 0 red\n300 0 0 bad\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadGPL(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "test" || len(p.Colors) != 2 || p.Colors[1] != (RGB{255, 0, 0}) {
		t.Errorf("palette = %+v", p)
	}

	empty := filepath.Join(t.TempDir(), "empty.gpl")
	os.WriteFile(empty, []byte("GIMP Palette\n"), 0644)
	if _, err := LoadGPL(empty); err == nil {
		t.Error("empty palette accepted")
	}
}

func TestTrackColorsDiffer(t *testing.T) {
	seen := map[RGB]bool{}
	for i := 0; i < 6; i++ {
		c := TrackColor(i, 6)
		if seen[c] {
			t.Errorf("track %d repeats color %v", i, c)
		}
		seen[c] = true
	}
	if TrackColor(7, 6) != TrackColor(1, 6) {
		t.Error("colors do not wrap")
	}
	if TrackColor(0, 0) != TrackColor(0, 1) {
		t.Error("zero tracks")
	}
}

func TestDim(t *testing.T) {
	c := RGB{200, 80, 40}
	if got := Dim(c, 0); !near(got, c) {
		t.Errorf("Dim(0) = %v", got)
	}
	if got := Dim(c, 1); !near(got, RGB{}) {
		t.Errorf("Dim(1) = %v", got)
	}
	if got := Dim(c, 0.5); got[0] >= c[0] {
		t.Errorf("Dim(0.5) = %v not darker", got)
	}
}

func TestHex(t *testing.T) {
	if got := (RGB{255, 0, 16}).Hex(); got != "#ff0010" {
		t.Errorf("Hex = %s", got)
	}
	th := New(nil)
	if th.Palette != Default || string(th.BG()) != Default.Colors[0].Hex() {
		t.Errorf("default theme BG = %s", th.BG())
	}
}
