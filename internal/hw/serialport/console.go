package serialport

import (
	"bufio"
	"os"
)

// ConsolePort is a bench substitute for the UART: commands typed on
// stdin, responses on stdout. A pump goroutine does the blocking reads
// so the port itself never blocks the control loop.
type ConsolePort struct {
	data chan []byte
	buf  []byte
	done chan struct{}
}

// NewConsole starts the stdin pump and returns the port.
func NewConsole() *ConsolePort {
	c := &ConsolePort{
		data: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *ConsolePort) pump() {
	r := bufio.NewReader(os.Stdin)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case c.data <- line:
			case <-c.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Read returns whatever input is already available, or (0, nil) when
// there is none, mirroring a timed-out UART read.
func (c *ConsolePort) Read(p []byte) (int, error) {
	if len(c.buf) == 0 {
		select {
		case b := <-c.data:
			c.buf = b
		default:
			return 0, nil
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *ConsolePort) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (c *ConsolePort) Close() error {
	close(c.done)
	return nil
}
