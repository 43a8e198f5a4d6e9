package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// SurfaceMagic opens every compiled surface file.
const SurfaceMagic = "Demeter"

// MaxSurfaceTextureSide bounds the width and height of an embedded texture.
const MaxSurfaceTextureSide = 16384

// Surface format errors.
var (
	ErrInvalidSurfaceMagic = errors.New("invalid surface magic: expected 'Demeter'")
	ErrTruncatedSurface    = errors.New("truncated surface data")
	ErrInvalidSurface      = errors.New("invalid surface data")
)

// Texture flag bits.
const (
	TextureFlagCompress uint8 = 1 << iota
	TextureFlagClamp
	TextureFlagAlpha
)

// SurfaceTexture is one entry of the texture set. A texture either refers to
// another entry (Shared >= 0), names a file, or embeds raw pixels.
type SurfaceTexture struct {
	Shared   int32 // index of the texture this one aliases, -1 if none
	FileName string
	Width    int32
	Height   int32
	Channels uint8
	Pixels   []byte
	Border   int32
	Flags    uint8
}

// FileBacked reports whether the texture is loaded from FileName.
func (t *SurfaceTexture) FileBacked() bool { return t.FileName != "" }

// SurfaceTile maps one texture tile to its base and detail textures.
type SurfaceTile struct {
	X, Y   int32
	Base   int32
	Detail []int32
}

// Surface is a compiled terrain texture set.
type Surface struct {
	Textures []SurfaceTexture
	Tiles    []SurfaceTile
}

// Resolve follows Shared links to the texture that holds data.
func (s *Surface) Resolve(i int) (*SurfaceTexture, error) {
	for hops := 0; hops <= len(s.Textures); hops++ {
		if i < 0 || i >= len(s.Textures) {
			return nil, fmt.Errorf("%w: texture index %d", ErrInvalidSurface, i)
		}
		t := &s.Textures[i]
		if t.Shared < 0 {
			return t, nil
		}
		i = int(t.Shared)
	}
	return nil, fmt.Errorf("%w: shared texture cycle", ErrInvalidSurface)
}

// ParseSurface parses a compiled surface from raw bytes.
func ParseSurface(data []byte) (*Surface, error) {
	if len(data) < len(SurfaceMagic) {
		return nil, ErrTruncatedSurface
	}
	if string(data[:len(SurfaceMagic)]) != SurfaceMagic {
		return nil, ErrInvalidSurfaceMagic
	}

	r := &surfaceReader{r: bytes.NewReader(data[len(SurfaceMagic):])}
	s := &Surface{}

	count := r.count("texture count")
	for i := 0; i < count && r.err == nil; i++ {
		s.Textures = append(s.Textures, r.texture(i))
	}

	tiles := r.count("tile count")
	for i := 0; i < tiles && r.err == nil; i++ {
		tile := SurfaceTile{X: r.i32("tile x"), Y: r.i32("tile y"), Base: r.i32("base texture")}
		n := r.count("detail count")
		for k := 0; k < n && r.err == nil; k++ {
			tile.Detail = append(tile.Detail, r.i32("detail texture"))
		}
		s.Tiles = append(s.Tiles, tile)
	}
	if r.err != nil {
		return nil, r.err
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Surface) validate() error {
	n := int32(len(s.Textures))
	for i, t := range s.Textures {
		if t.Shared >= n || t.Shared < -1 {
			return fmt.Errorf("%w: texture %d shares missing texture %d", ErrInvalidSurface, i, t.Shared)
		}
	}
	for i, tile := range s.Tiles {
		if tile.Base < 0 || tile.Base >= n {
			return fmt.Errorf("%w: tile %d base texture %d", ErrInvalidSurface, i, tile.Base)
		}
		for _, d := range tile.Detail {
			if d < 0 || d >= n {
				return fmt.Errorf("%w: tile %d detail texture %d", ErrInvalidSurface, i, d)
			}
		}
	}
	return nil
}

// surfaceReader keeps the first error so field reads stay linear.
type surfaceReader struct {
	r   *bytes.Reader
	err error
}

func (sr *surfaceReader) read(what string, v any) {
	if sr.err != nil {
		return
	}
	if err := binary.Read(sr.r, binary.LittleEndian, v); err != nil {
		sr.err = fmt.Errorf("%w: reading %s", ErrTruncatedSurface, what)
	}
}

func (sr *surfaceReader) i32(what string) int32 {
	var v int32
	sr.read(what, &v)
	return v
}

func (sr *surfaceReader) u8(what string) uint8 {
	var v uint8
	sr.read(what, &v)
	return v
}

func (sr *surfaceReader) bytes(what string, n int) []byte {
	if sr.err != nil {
		return nil
	}
	if n < 0 || n > sr.r.Len() {
		sr.err = fmt.Errorf("%w: reading %s (%d bytes)", ErrTruncatedSurface, what, n)
		return nil
	}
	buf := make([]byte, n)
	io.ReadFull(sr.r, buf)
	return buf
}

// count reads a non-negative int32 element count.
func (sr *surfaceReader) count(what string) int {
	n := sr.i32(what)
	if sr.err == nil && n < 0 {
		sr.err = fmt.Errorf("%w: negative %s %d", ErrInvalidSurface, what, n)
	}
	return int(n)
}

func (sr *surfaceReader) texture(i int) SurfaceTexture {
	t := SurfaceTexture{Shared: sr.i32("shared index")}
	if sr.u8("file flag") != 0 {
		var n uint32
		sr.read("name length", &n)
		t.FileName = string(sr.bytes(fmt.Sprintf("texture %d name", i), int(n)))
	} else {
		t.Width = sr.i32("width")
		t.Height = sr.i32("height")
		t.Channels = sr.u8("channels")
		if sr.err == nil && (!validTextureSide(t.Width) || !validTextureSide(t.Height)) {
			sr.err = fmt.Errorf("%w: texture %d is %dx%d", ErrInvalidSurface, i, t.Width, t.Height)
		}
		if sr.err == nil {
			size := int64(t.Width) * int64(t.Height) * int64(t.Channels)
			if size > int64(sr.r.Len()) {
				sr.err = fmt.Errorf("%w: reading texture %d pixels (%d bytes)", ErrTruncatedSurface, i, size)
			} else {
				t.Pixels = sr.bytes(fmt.Sprintf("texture %d pixels", i), int(size))
			}
		}
	}
	t.Border = sr.i32("border")
	t.Flags = sr.u8("flags")
	return t
}

func validTextureSide(n int32) bool {
	return n >= 0 && n <= MaxSurfaceTextureSide
}

// Encode writes the surface in the compiled format.
func (s *Surface) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	bw.WriteString(SurfaceMagic)
	binary.Write(bw, le, int32(len(s.Textures)))
	for i := range s.Textures {
		t := &s.Textures[i]
		binary.Write(bw, le, t.Shared)
		if t.FileBacked() {
			bw.WriteByte(1)
			binary.Write(bw, le, uint32(len(t.FileName)))
			bw.WriteString(t.FileName)
		} else {
			if want := int(t.Width) * int(t.Height) * int(t.Channels); len(t.Pixels) != want {
				return fmt.Errorf("%w: texture %d has %d pixel bytes, want %d", ErrInvalidSurface, i, len(t.Pixels), want)
			}
			bw.WriteByte(0)
			binary.Write(bw, le, t.Width)
			binary.Write(bw, le, t.Height)
			bw.WriteByte(t.Channels)
			bw.Write(t.Pixels)
		}
		binary.Write(bw, le, t.Border)
		bw.WriteByte(t.Flags)
	}

	binary.Write(bw, le, int32(len(s.Tiles)))
	for _, tile := range s.Tiles {
		binary.Write(bw, le, tile.X)
		binary.Write(bw, le, tile.Y)
		binary.Write(bw, le, tile.Base)
		binary.Write(bw, le, int32(len(tile.Detail)))
		for _, d := range tile.Detail {
			binary.Write(bw, le, d)
		}
	}
	return bw.Flush()
}

// ReadSurfaceFile loads a surface from disk. Paths ending in .zst are zstd-compressed.
func ReadSurfaceFile(path string) (*Surface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening surface: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading surface %s: %w", path, err)
	}
	return ParseSurface(data)
}

// WriteSurfaceFile saves a surface, compressing with zstd when path ends in .zst.
func WriteSurfaceFile(path string, s *Surface) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ".zst") {
		return s.Encode(f)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := s.Encode(enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
