//go:build darwin

package portapty

import "golang.org/x/sys/unix"

const setTermiosIoctl = unix.TIOCSETA

// defaultTermios is a standard cooked terminal at 38400 baud, matching
// typical ttydefaults. The V* indices come from the macOS headers and
// differ from Linux.
func defaultTermios() *unix.Termios {
	tio := &unix.Termios{
		Iflag:  unix.ICRNL | unix.IXON | unix.IXANY | unix.IMAXBEL | unix.BRKINT | unix.IUTF8,
		Oflag:  unix.OPOST | unix.ONLCR,
		Cflag:  unix.CREAD | unix.CS8 | unix.HUPCL,
		Lflag:  unix.ICANON | unix.ISIG | unix.IEXTEN | unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHOKE | unix.ECHOCTL,
		Ispeed: unix.B38400,
		Ospeed: unix.B38400,
	}
	tio.Cc[unix.VEOF] = 4
	tio.Cc[unix.VERASE] = 0x7f
	tio.Cc[unix.VWERASE] = 23
	tio.Cc[unix.VKILL] = 21
	tio.Cc[unix.VREPRINT] = 18
	tio.Cc[unix.VINTR] = 3
	tio.Cc[unix.VQUIT] = 0x1c
	tio.Cc[unix.VSUSP] = 26
	tio.Cc[unix.VSTART] = 17
	tio.Cc[unix.VSTOP] = 19
	tio.Cc[unix.VLNEXT] = 22
	tio.Cc[unix.VDISCARD] = 15
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0
	return tio
}

func convertTermios(t *Termios) *unix.Termios {
	tio := &unix.Termios{
		Iflag:  uint64(t.Iflag),
		Oflag:  uint64(t.Oflag),
		Cflag:  uint64(t.Cflag),
		Lflag:  uint64(t.Lflag),
		Ispeed: uint64(t.Ispeed),
		Ospeed: uint64(t.Ospeed),
	}
	// Trim the 32-byte array to the platform's NCCS.
	for i := 0; i < len(tio.Cc) && i < len(t.Cc); i++ {
		tio.Cc[i] = t.Cc[i]
	}
	return tio
}
