package logx

import (
	"os"
	"strconv"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	green  = "\x1b[97;42m"
	white  = "\x1b[90;47m"
	yellow = "\x1b[90;43m"
	red    = "\x1b[97;41m"
	reset  = "\x1b[0m"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
)

// ColorEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func ColorEnabled() bool {
	colorOnce.Do(func() {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return
		}
		fd := os.Stdout.Fd()
		colorEnabled = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	})
	return colorEnabled
}

func ColorizeStatusWith(status int, color bool) string {
	s := strconv.Itoa(status)
	if !color {
		return s
	}
	var c string
	switch {
	case status >= 200 && status < 300:
		c = green
	case status >= 300 && status < 400:
		c = white
	case status >= 400 && status < 500:
		c = yellow
	default:
		c = red
	}
	return c + " " + s + " " + reset
}
