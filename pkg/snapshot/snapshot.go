// Package snapshot packs many sketch states into one in-memory blob and back.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"github.com/tinylib/msgp/msgp"
	"io"
	"time"
)

var (
	ErrUnknownFormat = errors.New("unknown snapshot format")
	ErrCorrupted     = errors.New("corrupted snapshot")
)

// Format selects the outer encoding of a snapshot.
type Format string

const (
	Raw  Format = "raw"  // msgpack array of states
	Gzip Format = "gzip" // the raw form behind gzip
)

var gzipMagic = []byte{0x1f, 0x8b}

// ParseFormat resolves a format name, empty means Raw.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", Raw:
		return Raw, nil
	case Gzip:
		return Gzip, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// nopWriteCloser wraps an io.Writer to satisfy io.WriteCloser
// with a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n nopWriteCloser) Close() error { return nil }

// Encode writes states as one msgpack array in the given format.
func Encode(states []*sketch.State, format Format) ([]byte, error) {
	start := time.Now()

	wrapWriter := func(w io.Writer) io.WriteCloser {
		return nopWriteCloser{w}
	}
	switch format {
	case Raw, "":
	case Gzip:
		wrapWriter = func(w io.Writer) io.WriteCloser {
			return gzip.NewWriter(w)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	size := msgp.ArrayHeaderSize
	for _, st := range states {
		size += st.Msgsize()
	}
	body := msgp.AppendArrayHeader(make([]byte, 0, size), uint32(len(states)))
	for i, st := range states {
		var err error
		if body, err = st.MarshalMsg(body); err != nil {
			return nil, fmt.Errorf("encode state %d: %w", i, err)
		}
	}

	var out bytes.Buffer
	wc := wrapWriter(&out)
	if _, err := wc.Write(body); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("close snapshot writer: %w", err)
	}

	log.Debug().Msgf("[snapshot] encoded %d states into %s as %s (elapsed: %s)",
		len(states), humanize.Bytes(uint64(out.Len())), formatOf(format), time.Since(start))
	return out.Bytes(), nil
}

// Decode reads states written by Encode in either format; gzip is detected
// by its magic bytes.
func Decode(data []byte) ([]*sketch.State, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip snapshot: %w", err)
		}
		defer gz.Close()
		if data, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("read gzip snapshot: %w", err)
		}
	}

	n, rest, err := msgp.ReadArrayHeaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if uint64(n) > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: %d states announced in %d bytes", ErrCorrupted, n, len(rest))
	}
	states := make([]*sketch.State, 0, n)
	for i := uint32(0); i < n; i++ {
		st := &sketch.State{}
		if rest, err = st.UnmarshalMsg(rest); err != nil {
			return nil, fmt.Errorf("%w: state %d: %w", ErrCorrupted, i, err)
		}
		states = append(states, st)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupted, len(rest))
	}
	return states, nil
}

// Restore decodes data and rebuilds every sketch. States that fail to
// restore are skipped and counted; the error reports how many.
func Restore(data []byte) ([]sketch.Sketch, error) {
	start := time.Now()
	states, err := Decode(data)
	if err != nil {
		return nil, err
	}

	sketches := make([]sketch.Sketch, 0, len(states))
	var errorNum int
	for i, st := range states {
		s, err := sketch.Restore(st)
		if err != nil {
			log.Error().Err(err).Msgf("[snapshot] state %d restore failed", i)
			errorNum++
			continue
		}
		sketches = append(sketches, s)
	}

	log.Debug().Msgf("[snapshot] restored %d sketches, errors: %d (elapsed: %s)", len(sketches), errorNum, time.Since(start))
	if errorNum > 0 {
		return sketches, fmt.Errorf("restore completed with %d errors", errorNum)
	}
	return sketches, nil
}

func formatOf(f Format) Format {
	if f == "" {
		return Raw
	}
	return f
}
