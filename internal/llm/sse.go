package llm

import (
	"bufio"
	"bytes"
	"io"
)

const maxEventSize = 1 << 20

// readEvents calls fn with the data of each server-sent event in r.
// Multi-line data fields are joined with newlines; other fields are ignored.
func readEvents(r io.Reader, fn func(data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data []byte
	pending := false
	dispatch := func() error {
		if !pending {
			return nil
		}
		pending = false
		d := data
		data = nil
		return fn(d)
	}

	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if err := dispatch(); err != nil {
				return err
			}
		case line[0] == ':':
			// comment
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[5:], []byte(" "))
			if pending {
				data = append(data, '\n')
			}
			data = append(data, v...)
			pending = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return dispatch()
}
