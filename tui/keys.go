package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down, Left, Right key.Binding
	Toggle                key.Binding
	NextTrack, PrevTrack  key.Binding
	Play                  key.Binding
	TempoUp, TempoDown    key.Binding
	Mute                  key.Binding
	VolumeUp, VolumeDown  key.Binding
	Clear                 key.Binding
	Beat                  key.Binding
	Help                  key.Binding
	Quit                  key.Binding
}

func binding(help string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help))
}

func defaultKeys() keyMap {
	return keyMap{
		Up:         binding("up", "k", "up"),
		Down:       binding("down", "j", "down"),
		Left:       binding("left", "h", "left"),
		Right:      binding("right", "l", "right"),
		Toggle:     binding("toggle", "space", " ", "enter"),
		NextTrack:  binding("next track", "tab"),
		PrevTrack:  binding("prev track", "shift+tab"),
		Play:       binding("play/stop", "p"),
		TempoUp:    binding("tempo +5", "+", "="),
		TempoDown:  binding("tempo -5", "-", "_"),
		Mute:       binding("mute", "m"),
		VolumeUp:   binding("volume +3dB", "]"),
		VolumeDown: binding("volume -3dB", "["),
		Clear:      binding("clear track", "c"),
		Beat:       binding("beat size", "b"),
		Help:       binding("more", "?"),
		Quit:       binding("quit", "q", "ctrl+c"),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.NextTrack, k.Play, k.TempoUp, k.TempoDown, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Toggle, k.Clear, k.NextTrack, k.PrevTrack},
		{k.Play, k.TempoUp, k.TempoDown, k.Beat},
		{k.Mute, k.VolumeUp, k.VolumeDown, k.Help, k.Quit},
	}
}
