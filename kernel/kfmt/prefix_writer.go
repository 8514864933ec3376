package kfmt

import "io"

// PrefixWriter wraps an io.Writer and starts every output line with Prefix.
type PrefixWriter struct {
	Sink   io.Writer
	Prefix []byte

	midLine bool
}

// Write forwards p to the sink, emitting Prefix before the first byte of
// each line. The returned count excludes the prefix bytes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) != 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		end := len(p)
		for i, b := range p {
			if b == '\n' {
				end = i + 1
				w.midLine = false
				break
			}
		}

		n, err := w.Sink.Write(p[:end])
		written += n
		if err != nil {
			return written, err
		}
		p = p[end:]
	}

	return written, nil
}
